// Package discovery announces device hosts on the local network over mDNS.
//
// A host publishes one _devhost._tcp service whose port is the RPC
// listener and whose TXT records identify the host:
//
//	host=<host instance ID>
//	name=<configured host name>
//	root=<root device name>
//	net=<listener network>
//
// Coordinators and tools find hosts with Browser.
package discovery
