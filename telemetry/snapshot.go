package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/cosmos/particle"
	"gonum.org/v1/gonum/spatial/r3"
)

func vec3(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }

// SnapshotVersion is incremented when the on-disk format changes.
const SnapshotVersion = 1

// Snapshot holds the restart-complete simulation state: the integer
// timeline plus the particle arrays. The core treats
// snapshot content as opaque to the task graph and scheduler; this is the
// reference writer a deployment without its own I/O format can use as its
// physics.Runner-adjacent persistence collaborator.
type Snapshot struct {
	Version int     `json:"version"`
	Tick    int64   `json:"tick"`
	SimTime float64 `json:"sim_time"`

	Parts  []PartState  `json:"parts,omitempty"`
	XParts []XPartState `json:"xparts,omitempty"`
	GParts []GPartState `json:"gparts,omitempty"`
	SParts []SPartState `json:"sparts,omitempty"`
}

// PartState is the JSON-serializable form of particle.Part.
type PartState struct {
	ID      uint64  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	VX      float64 `json:"vx"`
	VY      float64 `json:"vy"`
	VZ      float64 `json:"vz"`
	H       float64 `json:"h"`
	Rho     float64 `json:"rho"`
	U       float64 `json:"u"`
	TimeBin uint8   `json:"time_bin"`
	GPart   int32   `json:"gpart"`
}

// XPartState is the JSON-serializable form of particle.XPart.
type XPartState struct {
	UFull     float64 `json:"u_full"`
	EntropyFR float64 `json:"entropy_fr"`
}

// GPartState is the JSON-serializable form of particle.GPart, spelling out
// PartnerRef explicitly since its fields are deliberately unexported.
type GPartState struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	VX   float64 `json:"vx"`
	VY   float64 `json:"vy"`
	VZ   float64 `json:"vz"`
	Mass float64 `json:"mass"`
	TimeBin uint8 `json:"time_bin"`

	PartnerKind  particle.PartnerKind `json:"partner_kind"`
	PartnerDMID  uint64               `json:"partner_dm_id,omitempty"`
	PartnerIndex uint32               `json:"partner_index,omitempty"`
}

// SPartState is the JSON-serializable form of particle.SPart.
type SPartState struct {
	ID      uint64  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	VX      float64 `json:"vx"`
	VY      float64 `json:"vy"`
	VZ      float64 `json:"vz"`
	TimeBin uint8   `json:"time_bin"`
	GPart   int32   `json:"gpart"`
}

// PartToState converts a live particle.Part into its snapshot form.
func PartToState(p particle.Part) PartState {
	return PartState{
		ID: uint64(p.ID), X: p.X.X, Y: p.X.Y, Z: p.X.Z,
		VX: p.V.X, VY: p.V.Y, VZ: p.V.Z,
		H: p.H, Rho: p.Rho, U: p.U, TimeBin: p.TimeBin, GPart: p.GPart,
	}
}

// Part converts a snapshot PartState back into a live particle.Part. The
// density-loop accumulator fields (WCountDh, WCount, RhoDh) are not part of
// restart state; they are recomputed by the first density pass after load.
func (s PartState) Part() particle.Part {
	return particle.Part{
		ID:      particle.ID(s.ID),
		X:       vec3(s.X, s.Y, s.Z),
		V:       vec3(s.VX, s.VY, s.VZ),
		H:       s.H,
		Rho:     s.Rho,
		U:       s.U,
		TimeBin: s.TimeBin,
		GPart:   s.GPart,
	}
}

// GPartToState converts a live particle.GPart into its snapshot form.
func GPartToState(g particle.GPart) GPartState {
	s := GPartState{
		X: g.X.X, Y: g.X.Y, Z: g.X.Z,
		VX: g.V.X, VY: g.V.Y, VZ: g.V.Z,
		Mass: g.Mass, TimeBin: g.TimeBin,
		PartnerKind: g.Partner.Kind(),
	}
	switch g.Partner.Kind() {
	case particle.PartnerDM:
		s.PartnerDMID = uint64(g.Partner.DMID())
	default:
		s.PartnerIndex = g.Partner.Index()
	}
	return s
}

// GPart converts a snapshot GPartState back into a live particle.GPart.
func (s GPartState) GPart() particle.GPart {
	var partner particle.PartnerRef
	switch s.PartnerKind {
	case particle.PartnerDM:
		partner = particle.DM(particle.ID(s.PartnerDMID))
	case particle.PartnerGas:
		partner = particle.Gas(s.PartnerIndex)
	case particle.PartnerStar:
		partner = particle.Star(s.PartnerIndex)
	}
	return particle.GPart{
		X: vec3(s.X, s.Y, s.Z), V: vec3(s.VX, s.VY, s.VZ),
		Mass: s.Mass, TimeBin: s.TimeBin, Partner: partner,
	}
}

// XPartToState converts a live particle.XPart into its snapshot form.
func XPartToState(xp particle.XPart) XPartState {
	return XPartState{UFull: xp.UFull, EntropyFR: xp.EntropyFR}
}

// XPart converts a snapshot XPartState back into a live particle.XPart.
func (s XPartState) XPart() particle.XPart {
	return particle.XPart{UFull: s.UFull, EntropyFR: s.EntropyFR}
}

// SPartToState converts a live particle.SPart into its snapshot form.
func SPartToState(sp particle.SPart) SPartState {
	return SPartState{
		ID: uint64(sp.ID), X: sp.X.X, Y: sp.X.Y, Z: sp.X.Z,
		VX: sp.V.X, VY: sp.V.Y, VZ: sp.V.Z,
		TimeBin: sp.TimeBin, GPart: sp.GPart,
	}
}

// SPart converts a snapshot SPartState back into a live particle.SPart.
func (s SPartState) SPart() particle.SPart {
	return particle.SPart{
		ID:      particle.ID(s.ID),
		X:       vec3(s.X, s.Y, s.Z),
		V:       vec3(s.VX, s.VY, s.VZ),
		TimeBin: s.TimeBin,
		GPart:   s.GPart,
	}
}

// SaveSnapshot writes snapshot to basename_<tick>.json under dir, returning
// the path it wrote.
func SaveSnapshot(snapshot *Snapshot, dir, basename string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d.json", basename, snapshot.Tick)
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}
