// Package lcp implements an LCP node: a decentralized peer-to-peer LAN
// chat and file-transfer engine speaking the custom wire protocol
// defined in this repository's specification over a single shared UDP
// and TCP port. A node discovers peers by UDP broadcast, exchanges
// unicast or broadcast text messages through a two-phase
// header-then-body handshake, replicates named group membership via
// broadcast, and transfers files with a UDP announce followed by an
// in-band TCP stream.
//
// Package lcp is the engine itself; console/TUI front-ends, on-disk
// history persistence, and log formatting are external collaborators
// that hold an *Engine and drive it through the Sender API
// (SendMessage, SendBroadcast, SendFile, CreateGroup, JoinGroup,
// SendGroupMessage, Shutdown) while consuming its Peers/Groups/Events/
// Incoming/IncomingFiles streams.
package lcp
