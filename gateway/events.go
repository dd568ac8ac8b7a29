package gateway

import (
	"encoding/hex"
	"math/big"

	"crossgate/core/events"
	"crossgate/core/message"
)

const (
	EventTypeProven = "gateway.proven"
	EventTypeLinked = "gateway.linked"

	EventTypeLinkDeclared  = "gateway.link.declared"
	EventTypeLinkConfirmed = "gateway.link.confirmed"

	EventTypeStakeDeclared        = "gateway.stake.declared"
	EventTypeStakeProgressed      = "gateway.stake.progressed"
	EventTypeStakeRevertDeclared  = "gateway.stake.revert_declared"
	EventTypeStakeRevertCompleted = "gateway.stake.revert_completed"

	EventTypeMintConfirmed      = "gateway.mint.confirmed"
	EventTypeMintProgressed     = "gateway.mint.progressed"
	EventTypeMintRevertComplete = "gateway.mint.revert_confirmed"

	EventTypeRedeemDeclared        = "gateway.redeem.declared"
	EventTypeRedeemProgressed      = "gateway.redeem.progressed"
	EventTypeRedeemRevertDeclared  = "gateway.redeem.revert_declared"
	EventTypeRedeemRevertCompleted = "gateway.redeem.revert_completed"

	EventTypeUnstakeConfirmed      = "gateway.unstake.confirmed"
	EventTypeUnstakeProgressed     = "gateway.unstake.progressed"
	EventTypeUnstakeRevertComplete = "gateway.unstake.revert_confirmed"
)

func hexBytes(b []byte) string { return hex.EncodeToString(b) }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newMessageEvent(eventType string, hash [32]byte, msg *message.Message, extra map[string]string) *events.Event {
	attrs := map[string]string{
		"messageHash": hexBytes(hash[:]),
	}
	if msg != nil {
		attrs["sender"] = hexBytes(msg.Sender[:])
		attrs["nonce"] = new(big.Int).SetUint64(msg.Nonce).String()
		attrs["intentHash"] = hexBytes(msg.IntentHash[:])
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &events.Event{Type: eventType, Attributes: attrs}
}

func newProvenEvent(remote [20]byte, height uint64, storageRoot [32]byte) *events.Event {
	return &events.Event{
		Type: EventTypeProven,
		Attributes: map[string]string{
			"remote":      hexBytes(remote[:]),
			"blockHeight": new(big.Int).SetUint64(height).String(),
			"storageRoot": hexBytes(storageRoot[:]),
		},
	}
}

func newLinkedEvent(linkHash [32]byte) *events.Event {
	return &events.Event{
		Type: EventTypeLinked,
		Attributes: map[string]string{
			"messageHash": hexBytes(linkHash[:]),
		},
	}
}
