// Package wifi implements a simulated wireless network interface controller.
//
// Nothing here touches a radio. Scanning and association are faked, but the
// request/completion protocol toward the host networking stack is real:
//   - Request methods (Scan, Connect, Disconnect, StartAP, ...) record the
//     request in the device's pending slots under a single gate and return
//     immediately
//   - Deferred routines run on a per-kind dispatcher worker, read the slot
//     under the gate, perform the simulated action and report exactly one
//     terminal notification to the Host
//   - Close cancels every worker and waits for it, so no routine runs after
//     the device has been released
//
// The only network the device knows is the synthetic "WiFi" BSS.
package wifi
