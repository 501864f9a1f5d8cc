// Package remote is the optional cross-process transport for
// BoundaryTransfer messages: a libp2p host per orchestrator node,
// exchanging protobuf-encoded agent records over a dedicated stream
// protocol. In-process deployments never import this package — workers
// sharing one WorldState hand agents off through internal/bus directly
// — this exists for the case where partitions are split across
// machines and the back page is no longer shared memory.
package remote

import (
	"context"
	"fmt"
	"io"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fieldforge/orchestrator/internal/bus"
	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/scenario"
	"github.com/fieldforge/orchestrator/internal/world"
	"github.com/fieldforge/orchestrator/internal/xlog"
)

// BoundaryProtocol is the libp2p stream protocol ID for boundary
// hand-offs between orchestrator nodes.
const BoundaryProtocol = "/orchestrator/boundary/1.0.0"

// Node wraps a libp2p host bound to one orchestrator process, routing
// inbound BoundaryTransfer streams to a local handler and providing Send
// for outbound transfers to a peer's multiaddress.
type Node struct {
	Host    libp2phost.Host
	logger  *xlog.Logger
	handler func(bus.BoundaryTransfer)
}

// NewNode starts a libp2p host with a fresh identity. Callers needing a
// stable PeerID across restarts should generate and persist a
// crypto.PrivKey themselves and pass it via libp2p.Identity before
// calling this (left to the deployment, not this package, since key
// custody is an operational concern).
func NewNode(logger *xlog.Logger) (*Node, error) {
	if logger == nil {
		logger = xlog.Default("bus-remote")
	}
	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, fmt.Errorf("generate node key: %w", err)
	}
	host, err := libp2p.New(libp2p.Identity(priv))
	if err != nil {
		return nil, fmt.Errorf("start libp2p host: %w", err)
	}
	n := &Node{Host: host, logger: logger}
	host.SetStreamHandler(BoundaryProtocol, n.handleStream)
	return n, nil
}

// Addrs returns this node's dialable multiaddresses, each including the
// /p2p/<peerID> suffix a remote SetHandler peer needs to dial back.
func (n *Node) Addrs() []string {
	id := n.Host.ID()
	out := make([]string, 0, len(n.Host.Addrs()))
	for _, a := range n.Host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a.String(), id.String()))
	}
	return out
}

// SetHandler registers the callback invoked for every BoundaryTransfer
// received from a peer.
func (n *Node) SetHandler(h func(bus.BoundaryTransfer)) { n.handler = h }

// Send encodes and delivers a BoundaryTransfer to the orchestrator node
// listening at peerAddr (a full /p2p multiaddress).
func (n *Node) Send(ctx context.Context, peerAddr string, bt bus.BoundaryTransfer) error {
	maddr, err := ma.NewMultiaddr(peerAddr)
	if err != nil {
		return fmt.Errorf("parse peer address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("resolve peer info: %w", err)
	}
	if err := n.Host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("connect to peer: %w", err)
	}
	stream, err := n.Host.NewStream(ctx, info.ID, BoundaryProtocol)
	if err != nil {
		return fmt.Errorf("open boundary stream: %w", err)
	}
	defer stream.Close()

	payload, err := encodeBoundaryTransfer(bt)
	if err != nil {
		return err
	}
	if _, err := stream.Write(payload); err != nil {
		return fmt.Errorf("write boundary payload: %w", err)
	}
	return stream.CloseWrite()
}

func (n *Node) handleStream(s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		n.logger.Warn("boundary stream read failed", xlog.Err(err))
		return
	}
	bt, err := decodeBoundaryTransfer(data)
	if err != nil {
		n.logger.Warn("boundary payload decode failed", xlog.Err(err))
		return
	}
	if n.handler != nil {
		n.handler(bt)
	}
}

// encodeBoundaryTransfer marshals a BoundaryTransfer as a protobuf
// structpb.Struct — a generic, schema-less envelope that avoids needing
// a generated message type for a payload this small and this rarely on
// the hot path (cross-machine boundary crossings are the exception, not
// the steady state).
func encodeBoundaryTransfer(bt bus.BoundaryTransfer) ([]byte, error) {
	agents := make([]interface{}, 0, len(bt.Agents))
	for _, rec := range bt.Agents {
		agents = append(agents, map[string]interface{}{
			"id":         float64(rec.ID),
			"kind":       float64(rec.Agent.Kind),
			"partition":  float64(rec.Agent.Partition),
			"position":   []interface{}{rec.Agent.Pose.Position[0], rec.Agent.Pose.Position[1], rec.Agent.Pose.Position[2]},
			"quaternion": []interface{}{rec.Agent.Pose.Orientation.X, rec.Agent.Pose.Orientation.Y, rec.Agent.Pose.Orientation.Z, rec.Agent.Pose.Orientation.W},
			"linear_vel": []interface{}{rec.Agent.Pose.LinearVelocity[0], rec.Agent.Pose.LinearVelocity[1], rec.Agent.Pose.LinearVelocity[2]},
			"angular_vel": []interface{}{rec.Agent.Pose.AngularVelocity[0], rec.Agent.Pose.AngularVelocity[1], rec.Agent.Pose.AngularVelocity[2]},
			"battery":    rec.Agent.Telemetry.BatteryFrac,
			"health":     rec.Agent.Telemetry.HealthFrac,
			"live":       rec.Agent.Live,
		})
	}
	st, err := structpb.NewStruct(map[string]interface{}{
		"tick":   float64(bt.Tick),
		"agents": agents,
	})
	if err != nil {
		return nil, fmt.Errorf("build boundary struct: %w", err)
	}
	return proto.Marshal(st)
}

func decodeBoundaryTransfer(data []byte) (bus.BoundaryTransfer, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return bus.BoundaryTransfer{}, fmt.Errorf("unmarshal boundary struct: %w", err)
	}
	fields := st.AsMap()
	bt := bus.BoundaryTransfer{Tick: uint64(asFloat(fields["tick"]))}
	rawAgents, _ := fields["agents"].([]interface{})
	for _, ra := range rawAgents {
		m, ok := ra.(map[string]interface{})
		if !ok {
			continue
		}
		bt.Agents = append(bt.Agents, bus.AgentRecord{
			ID: idgen.AgentID(uint32(asFloat(m["id"]))),
			Agent: world.Agent{
				ID:        idgen.AgentID(uint32(asFloat(m["id"]))),
				Kind:      kindFromFloat(asFloat(m["kind"])),
				Partition: uint32(asFloat(m["partition"])),
				Pose: world.Pose{
					Position:        vec3(m["position"]),
					Orientation:     quatFrom(m["quaternion"]),
					LinearVelocity:  vec3(m["linear_vel"]),
					AngularVelocity: vec3(m["angular_vel"]),
				},
				Telemetry: world.Telemetry{
					BatteryFrac: asFloat(m["battery"]),
					HealthFrac:  asFloat(m["health"]),
				},
				Live: asBool(m["live"]),
			},
		})
	}
	return bt, nil
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func vec3(v interface{}) [3]float64 {
	list, _ := v.([]interface{})
	var out [3]float64
	for i := 0; i < 3 && i < len(list); i++ {
		out[i] = asFloat(list[i])
	}
	return out
}

func quatFrom(v interface{}) world.Quaternion {
	list, _ := v.([]interface{})
	q := world.IdentityQuaternion()
	if len(list) == 4 {
		q = world.Quaternion{X: asFloat(list[0]), Y: asFloat(list[1]), Z: asFloat(list[2]), W: asFloat(list[3])}
	}
	return q
}

func kindFromFloat(f float64) scenario.AgentKind {
	return scenario.AgentKind(int(f))
}
