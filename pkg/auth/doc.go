// Package auth provides the authentication types shared between the
// deskauth session and the collaborators that consume it (the desktop
// overlay, the analysis pipeline, the command line front-end).
//
// Nothing in this package performs I/O. It only describes who is signed in,
// what the session is currently doing and how much API quota is left.
package auth
