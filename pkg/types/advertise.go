package types

// EvtAdvertisedPeerChanged 本地广告列表发生变化
type EvtAdvertisedPeerChanged struct {
	BaseEvent
	Peer  PeerID
	Added bool
}

// EvtProviderStateChanged 本地广告提供者状态变化
type EvtProviderStateChanged struct {
	BaseEvent
	Enabled bool
}

// EvtAdvertiseQueryAnswered 远程提供者应答了广告查询
//
// Providing 为 false 时 Peers 为空。
type EvtAdvertiseQueryAnswered struct {
	BaseEvent
	From      PeerID
	Providing bool
	Peers     []PeerID
}
