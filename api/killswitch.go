package api

import (
	"net/http"

	"github.com/b0bbywan/odio-bluetooth/backend/killswitch"
)

type killswitchStatus struct {
	State           killswitch.State `json:"state"`
	Radios          int              `json:"radios"`
	HasKillswitches bool             `json:"has_killswitches"`
}

type killswitchRequest struct {
	State killswitch.State `json:"state"`
}

func validateKillswitch(req *killswitchRequest) error {
	if req.State != killswitch.SoftBlocked && req.State != killswitch.Unblocked {
		return killswitch.ErrInvalidState
	}
	return nil
}

func getKillswitch(m *killswitch.Monitor) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		return killswitchStatus{
			State:           m.State(),
			Radios:          len(m.Radios()),
			HasKillswitches: m.HasKillswitches(),
		}, nil
	})
}

func setKillswitch(m *killswitch.Monitor) http.HandlerFunc {
	return withBody(validateKillswitch, func(w http.ResponseWriter, r *http.Request, req *killswitchRequest) {
		writeAccepted(w, m.SetState(req.State))
	})
}
