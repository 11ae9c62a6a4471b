package services

import (
	"context"
	"testing"
	"time"

	"leadpulse/internal/models"
)

func TestAcceptAndRemove(t *testing.T) {
	cm := NewConnectionManager(nil, nil)
	ctx := context.Background()

	conn := models.NewClientConnection("c1", "lead-1", models.RoleMember, "127.0.0.1", nil)
	cm.Accept(ctx, conn)

	if cm.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", cm.Count())
	}
	if got, ok := cm.Get("c1"); !ok || got.IdentityID != "lead-1" {
		t.Errorf("Get(c1) = %v, %v", got, ok)
	}

	cm.Remove("c1")
	if cm.Count() != 0 {
		t.Errorf("Count() after remove = %d, want 0", cm.Count())
	}
	if !conn.IsClosed() {
		t.Error("removed connection not marked closed")
	}

	// Removing twice must be a no-op, not a double close
	cm.Remove("c1")
}

func TestAcceptSubscribesByRole(t *testing.T) {
	cm := NewConnectionManager(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		role    models.ConnectionRole
		channel string
		want    bool
	}{
		{"anonymous gets listings", models.RoleAnonymous, models.ChannelListings, true},
		{"anonymous gets market", models.RoleAnonymous, models.ChannelMarket, true},
		{"anonymous has no identity channel", models.RoleAnonymous, models.IdentityChannel("v-1"), false},
		{"anonymous excluded from agent alerts", models.RoleAnonymous, models.ChannelAgentAlert, false},
		{"member gets identity channel", models.RoleMember, models.IdentityChannel("v-1"), true},
		{"member excluded from agent alerts", models.RoleMember, models.ChannelAgentAlert, false},
		{"privileged gets agent alerts", models.RolePrivileged, models.ChannelAgentAlert, true},
		{"privileged gets ops", models.RolePrivileged, models.ChannelOps, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := models.NewClientConnection("c-"+tt.name, "v-1", tt.role, "127.0.0.1", nil)
			cm.Accept(ctx, conn)
			defer cm.Remove(conn.ConnID)

			if got := conn.Subscribed(tt.channel); got != tt.want {
				t.Errorf("Subscribed(%s) = %v, want %v", tt.channel, got, tt.want)
			}
		})
	}
}

func TestBroadcastRespectsSubscriptions(t *testing.T) {
	cm := NewConnectionManager(nil, nil)
	ctx := context.Background()

	member := models.NewClientConnection("c1", "lead-1", models.RoleMember, "127.0.0.1", nil)
	agent := models.NewClientConnection("c2", "agent-1", models.RolePrivileged, "127.0.0.1", nil)
	cm.Accept(ctx, member)
	cm.Accept(ctx, agent)

	cm.Broadcast(ctx, models.ChannelAgentAlert, models.ServerMessage{
		Type:    "broadcast",
		Payload: map[string]interface{}{"event": "lead_hot"},
	})

	select {
	case msg := <-agent.WriteChan:
		if msg.Channel != models.ChannelAgentAlert {
			t.Errorf("message channel = %s, want %s", msg.Channel, models.ChannelAgentAlert)
		}
	default:
		t.Error("privileged subscriber received nothing")
	}

	select {
	case msg := <-member.WriteChan:
		t.Errorf("non-subscriber received %+v", msg)
	default:
	}
}

func TestSendReachesAllIdentityConnections(t *testing.T) {
	cm := NewConnectionManager(nil, nil)
	ctx := context.Background()

	first := models.NewClientConnection("c1", "lead-1", models.RoleMember, "127.0.0.1", nil)
	second := models.NewClientConnection("c2", "lead-1", models.RoleMember, "127.0.0.1", nil)
	other := models.NewClientConnection("c3", "lead-2", models.RoleMember, "127.0.0.1", nil)
	cm.Accept(ctx, first)
	cm.Accept(ctx, second)
	cm.Accept(ctx, other)

	cm.Send(ctx, "lead-1", models.ServerMessage{Type: "broadcast"})

	for _, conn := range []*models.ClientConnection{first, second} {
		select {
		case <-conn.WriteChan:
		default:
			t.Errorf("connection %s received nothing", conn.ConnID)
		}
	}
	select {
	case msg := <-other.WriteChan:
		t.Errorf("unrelated identity received %+v", msg)
	default:
	}
}

func TestSafeSendDropsNewestWhenFull(t *testing.T) {
	conn := models.NewClientConnection("c1", "lead-1", models.RoleMember, "127.0.0.1", nil)

	for i := 0; i < models.OutboundBufferSize; i++ {
		if !conn.SafeSend(models.ServerMessage{Type: "broadcast", Payload: map[string]interface{}{"seq": i}}) {
			t.Fatalf("send %d rejected below capacity", i)
		}
	}

	if conn.SafeSend(models.ServerMessage{Type: "broadcast"}) {
		t.Error("send into a full buffer reported success")
	}

	// Earlier messages survive in order; the overflow message is gone
	first := <-conn.WriteChan
	if first.Payload["seq"] != 0 {
		t.Errorf("head of buffer = %v, want seq 0", first.Payload["seq"])
	}
	if len(conn.WriteChan) != models.OutboundBufferSize-1 {
		t.Errorf("buffer length = %d, want %d", len(conn.WriteChan), models.OutboundBufferSize-1)
	}
}

func TestSafeSendAfterClose(t *testing.T) {
	cm := NewConnectionManager(nil, nil)
	conn := models.NewClientConnection("c1", "lead-1", models.RoleMember, "127.0.0.1", nil)
	cm.Accept(context.Background(), conn)
	cm.Remove("c1")

	if conn.SafeSend(models.ServerMessage{Type: "broadcast"}) {
		t.Error("send after close reported success")
	}
}

func TestReapStaleClosesSilentConnections(t *testing.T) {
	cm := NewConnectionManager(nil, nil)
	ctx := context.Background()

	stale := models.NewClientConnection("c1", "lead-1", models.RoleMember, "127.0.0.1", nil)
	fresh := models.NewClientConnection("c2", "lead-2", models.RoleMember, "127.0.0.1", nil)
	cm.Accept(ctx, stale)
	cm.Accept(ctx, fresh)

	now := time.Now()
	stale.Touch(now.Add(-2 * LivenessTimeout))
	fresh.Touch(now)

	cm.reapStale(now)

	if _, ok := cm.Get("c1"); ok {
		t.Error("stale connection survived the reaper")
	}
	if _, ok := cm.Get("c2"); !ok {
		t.Error("fresh connection was reaped")
	}
}
