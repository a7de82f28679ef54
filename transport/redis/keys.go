package redis

import "fmt"

// IngressKey is the LIST key a service's servers BLPOP from.
func IngressKey(service string) string {
	return fmt.Sprintf("service:%s", service)
}

// ReplyToKey is the LIST key one client instance awaits responses on for
// calls to a given service. It is scoped by both the service name and
// the client's own UUID (spec §4.3).
func ReplyToKey(service, clientUUID string) string {
	return fmt.Sprintf("service:%s.%s!", service, clientUUID)
}
