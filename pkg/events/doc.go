// Package events provides the in-memory pub/sub broker the Service Facade
// uses to fan change notifications out to host subscribers.
//
// Account add/update/remove and every externally observable Store mutation
// become an Event on the broker's single internal goroutine - the "main
// domain" described in the design: subscribers never race each other and
// never block a Resource Manager's reconcile loop, because broadcast happens
// off to the side on buffered channels.
package events
