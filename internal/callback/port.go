package callback

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
)

// loopbackHost is the only interface the callback server listens on.
const loopbackHost = "127.0.0.1"

func loopbackAddr(port int) string {
	return net.JoinHostPort(loopbackHost, strconv.Itoa(port))
}

// FindAvailablePort probes [low, high] in order with a bind-and-release and
// returns the first port that binds. The result is advisory: another process
// may take the port before the caller binds it.
func FindAvailablePort(low, high int) (int, error) {
	if low < 1 || high > 65535 || low > high {
		return 0, fmt.Errorf("%w: [%d, %d]", ErrInvalidPortRange, low, high)
	}

	for port := low; port <= high; port++ {
		listener, err := net.Listen("tcp", loopbackAddr(port))
		if err != nil {
			slog.Debug("Callback port unavailable", "port", port, "error", err.Error())
			continue
		}
		_ = listener.Close()
		return port, nil
	}

	return 0, &PortExhaustionError{Low: low, High: high}
}
