// Package device provides the platform-neutral Bluetooth Classic model used
// across sppcheck.
//
// It defines:
//   - Device and Service values produced by inquiry and SDP browsing
//   - Discoverer, ServiceBrowser and Dialer contracts implemented by the
//     platform backends (BlueZ D-Bus, SDP over L2CAP, RFCOMM sockets)
//   - The serial-service selection policy
//   - Structured errors and normalization of platform error values
package device
