// Package bus implements the external "group bus" collaborator the
// Socket.IO server fans broadcast traffic out through: group_add,
// group_discard, group_send. Its internals (persistence, cluster topology)
// are explicitly out of scope for this module — only the interface and a
// handful of concrete transports for it live here.
package bus

import (
	"context"
	"regexp"
)

// Envelope is what gets published to a group: the Socket.IO header string
// plus any binary attachments that followed it, exactly as produced by
// socketio/parser.EncodeWithAttachments.
type Envelope struct {
	Header      string
	Attachments [][]byte
}

// GroupBus is the cross-process broadcast collaborator: the three group
// operations (GroupAdd, GroupDiscard, GroupSend), plus Subscribe for
// receiving and Close. Membership bookkeeping, durability, and delivery
// semantics beyond at-least-once are the implementation's own concern.
type GroupBus interface {
	// GroupAdd joins member (typically an Engine.IO sid) to group.
	GroupAdd(ctx context.Context, group, member string) error
	// GroupDiscard removes member from group.
	GroupDiscard(ctx context.Context, group, member string) error
	// GroupSend publishes env to every current member of group. Local
	// delivery (to sockets this process already knows are in the group)
	// is the caller's responsibility — GroupSend only needs to reach
	// other processes.
	GroupSend(ctx context.Context, group string, env Envelope) error
	// Subscribe registers fn to be called with every Envelope published to
	// any group on the bus, whether or not this process has GroupAdd'ed a
	// member into it; fn is given the group name. Used to receive
	// broadcasts originating from other processes.
	Subscribe(ctx context.Context, fn func(group string, env Envelope)) error
	// Close releases any underlying connection.
	Close() error
}

var groupNameDisallowed = regexp.MustCompile(`[^0-9A-Za-z_.-]`)

// GroupName builds the sanitized, length-bounded bus group name for a
// (namespace, room) pair: "sio_<ns>_<room>" with every character outside
// [0-9A-Za-z_.-] replaced by '_', truncated to 99 chars. Bus-specific
// naming limits are enforced here, not in the individual bus backends.
func GroupName(namespace, room string) string {
	safeNs := groupNameDisallowed.ReplaceAllString(namespace, "_")
	safeRoom := groupNameDisallowed.ReplaceAllString(room, "_")
	name := "sio_" + safeNs + "_" + safeRoom
	if len(name) > 99 {
		name = name[:99]
	}
	return name
}
