package discovery

import (
	"context"
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/enbility/zeroconf/v3"
)

// Discovery defaults.
const (
	// DefaultService is the DNS-SD service type devices announce.
	DefaultService = "_http._tcp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
)

// ErrNotFound is returned when browsing ends without a match.
var ErrNotFound = errors.New("no device found")

// DeviceService is a discovered device.
type DeviceService struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the announced host name.
	Host string

	// Port is the announced port.
	Port uint16

	// Addresses are the IP addresses from all interfaces, IPv4 first.
	Addresses []string

	// Text holds the TXT record strings.
	Text []string
}

// Address returns host:port suitable for connecting. It prefers the first
// IP address and falls back to the host name. Port 80 is omitted.
func (s *DeviceService) Address() string {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	if s.Port == 0 || s.Port == 80 {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Service is the DNS-SD service type (default: _http._tcp).
	Service string

	// Domain is the browse domain (default: local.).
	Domain string

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	// Match keeps only instances whose name contains Match
	// (case-insensitive). Empty matches every instance.
	Match string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Service: DefaultService,
		Domain:  DefaultDomain,
	}
}

// browseFunc runs an mDNS browse until ctx is done.
type browseFunc func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry) error

// Browser browses for devices.
type Browser struct {
	config BrowserConfig
	browse browseFunc
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.Service == "" {
		config.Service = DefaultService
	}
	if config.Domain == "" {
		config.Domain = DefaultDomain
	}

	b := &Browser{config: config}
	b.browse = func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry) error {
		return zeroconf.Browse(ctx, service, domain, entries, removed, b.options()...)
	}
	return b
}

// Browse emits each matching device once, when first seen. Addresses a
// device announces later are merged into the emitted value. The channel is
// closed when ctx is done.
func (b *Browser) Browse(ctx context.Context) (<-chan *DeviceService, error) {
	out := make(chan *DeviceService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go b.aggregate(ctx, entries, removed, out)
	go func() {
		_ = b.browse(ctx, b.config.Service, b.config.Domain, entries, removed)
	}()

	return out, nil
}

// FindFirst returns the first matching device.
func (b *Browser) FindFirst(ctx context.Context) (*DeviceService, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	select {
	case svc, ok := <-results:
		if !ok {
			return nil, ErrNotFound
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ErrNotFound
	}
}

// FindAll collects matching devices until ctx is done.
func (b *Browser) FindAll(ctx context.Context) ([]*DeviceService, error) {
	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var out []*DeviceService
	for svc := range results {
		out = append(out, svc)
	}
	slices.SortFunc(out, func(a, b *DeviceService) int {
		return strings.Compare(a.Instance, b.Instance)
	})
	return out, nil
}

func (b *Browser) aggregate(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, out chan<- *DeviceService) {
	defer close(out)

	// Services by instance name
	services := make(map[string]*DeviceService)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if !b.matches(entry) {
				continue
			}
			svc := toDeviceService(entry)

			if existing, found := services[svc.Instance]; found {
				existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
				continue
			}
			services[svc.Instance] = svc
			select {
			case out <- svc:
			case <-ctx.Done():
				return
			}

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if existing, found := services[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, entry)
				if len(existing.Addresses) == 0 {
					delete(services, entry.Instance)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (b *Browser) matches(entry *zeroconf.ServiceEntry) bool {
	if b.config.Match == "" {
		return true
	}
	return strings.Contains(strings.ToLower(entry.Instance), strings.ToLower(b.config.Match))
}

// options returns zeroconf client options based on config.
func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func toDeviceService(entry *zeroconf.ServiceEntry) *DeviceService {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &DeviceService{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      uint16(entry.Port),
		Addresses: addrs,
		Text:      slices.Clone(entry.Text),
	}
}

// mergeAddresses adds new addresses to existing, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	for _, addr := range added {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses drops the addresses of entry from addresses.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	gone := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		gone[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		gone[ip.String()] = true
	}

	return slices.DeleteFunc(addresses, func(addr string) bool { return gone[addr] })
}
