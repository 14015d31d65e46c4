// Package discovery locates mixing devices on the local network via mDNS.
//
// Devices announce their web server as a DNS-SD service. Browser collects
// the announcements of one service type, merging the addresses a device
// announces on several interfaces into one DeviceService.
//
// # Usage
//
//	b := discovery.NewBrowser(discovery.DefaultBrowserConfig())
//	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	svc, err := b.FindFirst(ctx)
//	if err != nil {
//	    return err
//	}
//	client.Connect(svc.Address(), token)
package discovery
