// Package stunutil queries public STUN servers so doctor can tell whether the
// host is likely reachable without a relay.
package stunutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
	"github.com/sirupsen/logrus"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// Result is the outcome for one server.
type Result struct {
	Server string
	Mapped string
	Err    error
}

// Report summarises a query across servers.
type Report struct {
	PublicAddr string
	NATType    string
	Results    []Result
}

// Hint is a one-line reading of the NAT type for operators.
func (r Report) Hint() string {
	switch r.NATType {
	case NATTypeConeOrRestricted:
		return "mapping is stable; relays should connect normally"
	case NATTypeSymmetric:
		return "mapping changes per destination; expect relays to be the only public path"
	default:
		return "could not determine NAT behaviour; check outbound UDP"
	}
}

// Query asks each server for the mapped address of a fresh socket.
// Note: The mapped address is for the STUN socket and may not match other sockets.
func Query(ctx context.Context, servers []string, timeout time.Duration, logger logrus.FieldLogger) (Report, error) {
	report := Report{NATType: NATTypeUnknown}
	if len(servers) == 0 {
		return report, fmt.Errorf("no STUN servers provided")
	}

	mapped := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := queryServer(ctx, server, timeout)
		report.Results = append(report.Results, Result{Server: server, Mapped: addr, Err: err})
		if err != nil {
			lastErr = err
			if logger != nil {
				logger.WithError(err).WithField("server", server).Debug("stun query failed")
			}
			continue
		}
		mapped = append(mapped, addr)
	}

	if len(mapped) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN query failed")
		}
		return report, lastErr
	}

	report.PublicAddr = mapped[0]
	report.NATType = Classify(mapped)
	return report, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	first := addrs[0]
	for _, addr := range addrs[1:] {
		if addr != first {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

func queryServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			select {
			case fail <- err:
			default:
			}
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
