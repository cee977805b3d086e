package model

import "time"

// EventType enumerates the deliberation lifecycle events emitted by the
// Elder and Senate. Transport adapters consume them; the Senate does not
// know the transport.
type EventType string

const (
	EventSenateConvening        EventType = "SENATE_CONVENING"
	EventOnyxPrecheckStart      EventType = "ONYX_PRECHECK_START"
	EventOnyxPrecheckComplete   EventType = "ONYX_PRECHECK_COMPLETE"
	EventOnyxPrecheckVeto       EventType = "ONYX_PRECHECK_VETO"
	EventIgnisForgeStart        EventType = "IGNIS_FORGE_START"
	EventIgnisForgeComplete     EventType = "IGNIS_FORGE_COMPLETE"
	EventHydraStart             EventType = "HYDRA_START"
	EventHydraComplete          EventType = "HYDRA_COMPLETE"
	EventHydraSkipped           EventType = "HYDRA_SKIPPED"
	EventOnyxFinalStart         EventType = "ONYX_FINAL_START"
	EventOnyxFinalComplete      EventType = "ONYX_FINAL_COMPLETE"
	EventHydraOverrideTriggered EventType = "HYDRA_OVERRIDE_TRIGGERED"
	EventMissionApproved        EventType = "MISSION_APPROVED"
	EventMissionRefused         EventType = "MISSION_REFUSED"
	EventFinalVerdict           EventType = "FINAL_VERDICT"
	EventError                  EventType = "ERROR"
)

// Event is one deliberation lifecycle notification.
type Event struct {
	Type      EventType      `json:"type"`
	MissionID string         `json:"mission_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	EmittedAt time.Time      `json:"emitted_at"`
}
