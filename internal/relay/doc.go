// Package relay turns expiring Redis keys into pub/sub notifications.
//
// A requester announces a registration on the relay channel. The relay records
// the requester's app marker and arms a sentinel key named
// <prefix>:<app>:<raw registration> that expires after the registration's ttl.
// When Redis reports the expiration, the relay checks that the app is still
// registered and publishes the raw registration text on the channel it names.
//
// Redis must emit expired keyevents (notify-keyspace-events containing "Ex").
package relay
