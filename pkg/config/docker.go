package config

import (
	"net"
	"os"
	"sync"
)

// dockerHostGateway is how a container reaches services bound on the host.
const dockerHostGateway = "host.docker.internal"

var inContainer = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// IsRunningInDocker reports whether /.dockerenv exists. Cached after the first call.
func IsRunningInDocker() bool {
	return inContainer()
}

// ResolveHostForDocker points loopback datasource hosts at the Docker host
// gateway when the server itself runs in a container. A tenant that saved
// "localhost" means their machine, not ours.
func ResolveHostForDocker(host string) string {
	return rewriteLoopback(host, IsRunningInDocker())
}

// ResolveHostPortForDocker is ResolveHostForDocker for "host:port" values
// such as the authority of a REST base URL.
func ResolveHostPortForDocker(hostport string) string {
	return rewriteLoopbackHostPort(hostport, IsRunningInDocker())
}

func rewriteLoopback(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostGateway
	}
	return host
}

func rewriteLoopbackHostPort(hostport string, inDocker bool) string {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return rewriteLoopback(hostport, inDocker)
	}
	rewritten := rewriteLoopback(host, inDocker)
	if rewritten == host {
		return hostport
	}
	return net.JoinHostPort(rewritten, port)
}
