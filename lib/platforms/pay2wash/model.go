package pay2wash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// MachineState is an open enum: the portal defines the value set, so
// unrecognized states pass through untouched instead of failing.
type MachineState string

const (
	MachineIdle        MachineState = "idle"
	MachineRunning     MachineState = "running"
	MachineFinished    MachineState = "finished"
	MachineReserved    MachineState = "reserved"
	MachineMaintenance MachineState = "maintenance"
	MachineOutOfOrder  MachineState = "out_of_order"
)

// MachineStatus is one machine's snapshot from the status feed.
type MachineStatus struct {
	// ID is the portal's machine identifier.
	ID string
	// Name is the human label from the session's machine mapping, when
	// known (e.g. "W2").
	Name string
	// Type is the server-defined machine kind ("washer", "dryer", ...),
	// empty when the feed omits it.
	Type string
	// State is required: either sent by the feed or derived from the
	// raw occupancy flags.
	State MachineState
	// Raw keeps the optional portal fields as decoded.
	Raw RawStatus
}

// RawStatus mirrors the optional fields of the portal's feed. Pointers
// distinguish absent fields from zero values; unknown fields in the
// feed are ignored entirely.
type RawStatus struct {
	Running                    *bool          `json:"running"`
	Reserved                   *bool          `json:"reserved"`
	Starter                    *int64         `json:"starter"`
	Reserver                   *int64         `json:"reserver"`
	InMaintenance              *NumberBool    `json:"in_maintenance"`
	GatewayOffline             *NumberBool    `json:"gateway_offline"`
	RemainingTime              *RemainingTime `json:"remaining_time"`
	RemainingTimeIsFromMachine *NumberBool    `json:"remaining_time_is_from_machine"`
}

// NumberBool is the portal's integer boolean: 0 is false, 1 is true,
// anything else is kept as-is so it can be reported rather than lost.
type NumberBool int

func (n NumberBool) Bool() (value, known bool) {
	switch n {
	case 0:
		return false, true
	case 1:
		return true, true
	default:
		return false, false
	}
}

// True reports whether the value is the literal 1.
func (n NumberBool) True() bool {
	return n == 1
}

// RemainingTime decodes the feed's "HH:MM" remaining-time strings.
type RemainingTime struct {
	time.Duration
}

func (r *RemainingTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	hours, minutes, found := strings.Cut(raw, ":")
	if !found || len(hours) == 0 || len(hours) > 2 || len(minutes) == 0 || len(minutes) > 2 {
		return fmt.Errorf("remaining_time %q is not in HH:MM form", raw)
	}
	h, err := strconv.Atoi(hours)
	if err != nil {
		return fmt.Errorf("remaining_time %q: %w", raw, err)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil {
		return fmt.Errorf("remaining_time %q: %w", raw, err)
	}
	r.Duration = time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return nil
}

// machineID accepts both quoted and bare-number machine ids; the feed
// is not consistent about which it sends.
type machineID string

func (id *machineID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = machineID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = machineID(n.String())
	return nil
}

type jsonMachineStatus struct {
	ID    machineID `json:"id"`
	Type  string    `json:"type"`
	State string    `json:"state"`
	RawStatus
}

// state returns the feed's explicit state, or derives one from the raw
// occupancy flags the way the original feed encodes it.
func (j jsonMachineStatus) state() (MachineState, error) {
	if j.State != "" {
		return MachineState(j.State), nil
	}

	if j.Running == nil && j.Reserved == nil && j.InMaintenance == nil {
		return "", fmt.Errorf("status object carries neither a state nor occupancy flags")
	}
	running := j.Running != nil && *j.Running
	reserved := j.Reserved != nil && *j.Reserved
	maintenance := j.InMaintenance != nil && j.InMaintenance.True()

	switch {
	case running && !maintenance:
		return MachineRunning, nil
	case !running && reserved && !maintenance:
		return MachineReserved, nil
	case !running && !reserved && maintenance:
		return MachineMaintenance, nil
	case !running && !reserved && !maintenance:
		return MachineIdle, nil
	default:
		return "", fmt.Errorf(
			"occupancy flags do not hold their invariant: running=%v reserved=%v in_maintenance=%v",
			running, reserved, maintenance,
		)
	}
}

func (j jsonMachineStatus) toStatus(id string, names map[string]string) (MachineStatus, error) {
	state, err := j.state()
	if err != nil {
		return MachineStatus{}, fmt.Errorf("machine %q: %w", id, err)
	}
	return MachineStatus{
		ID:    id,
		Name:  names[id],
		Type:  j.Type,
		State: state,
		Raw:   j.RawStatus,
	}, nil
}

// DecodeStatuses decodes a status feed body. The portal has served two
// shapes over time: a JSON array of objects carrying their own ids, and
// an object keyed by machine id; both are accepted. Required per
// machine: an id and a state (explicit or derivable). Anything else is
// optional and unknown fields never fail the decode.
func DecodeStatuses(body []byte, names map[string]string) ([]MachineStatus, error) {
	trimmed := bytes.TrimLeftFunc(body, unicode.IsSpace)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		return decodeStatusList(trimmed, names)
	case len(trimmed) > 0 && trimmed[0] == '{':
		return decodeStatusMap(trimmed, names)
	default:
		return nil, fmt.Errorf("%w: body is neither a status array nor a keyed object", ErrInvalidResponse)
	}
}

func decodeStatusList(body []byte, names map[string]string) ([]MachineStatus, error) {
	var entries []jsonMachineStatus
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	out := make([]MachineStatus, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			return nil, fmt.Errorf("%w: status object is missing its machine id", ErrInvalidResponse)
		}
		status, err := entry.toStatus(string(entry.ID), names)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
		out = append(out, status)
	}
	return out, nil
}

func decodeStatusMap(body []byte, names map[string]string) ([]MachineStatus, error) {
	var entries map[string]jsonMachineStatus
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]MachineStatus, 0, len(entries))
	for _, id := range ids {
		status, err := entries[id].toStatus(id, names)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
		out = append(out, status)
	}
	return out, nil
}
