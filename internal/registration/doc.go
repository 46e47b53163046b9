// Package registration announces a controller manifest to the Sentient
// registry and routes the commands it receives back to the agent.
//
// Registration is two-phase and runs on every (re)connect:
//
//  1. One controller record is published to <root>/system/register/controller.
//     If this fails, registration stops with ErrRegistrationFailed and no
//     device record is sent.
//  2. One device record per device, in manifest order, is published to
//     <root>/system/register/device. A failed device does not stop the
//     remaining ones; the attempt ends with ErrRegistrationPartialFailure.
//
// Both phases use QoS 1. The registry uses the controller record's
// capability_manifest to build its action catalogue, and the device records
// to create per-device rows referencing the controller.
//
// Inbound commands are exact-topic matches built from the manifest:
//
//	<namespace>/<room>/commands/<controller>/<device>/<action>
//
// plus, when legacy mode is on, the room-wide aliases
// <namespace>/<room>/game/start and <namespace>/<room>/game/reset.
//
// The transport's handler only validates and queues; Run is the single
// worker that hands routes to the Dispatcher, so commands are executed one
// at a time in arrival order.
package registration
