// Package can defines the CAN 2.0B frame, the Driver consumed by the
// protocol engine and the carriers which move frames between nodes:
// an in-process virtual bus, packet-oriented links (TCP stream,
// websocket, MQTT) and Linux SocketCAN.
package can
