// Package printer defines the device control domain: request and reply
// payload shapes, topic addressing, command builders with session-scoped
// sequence ids, the single-slot reply mailbox, and the session state machine.
// It has no transport dependencies; the MQTT adapter lives in infra/mqtt.
package printer
