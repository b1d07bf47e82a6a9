package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"go.uber.org/zap"

	"github.com/hubdeck/hubdeck-api/api"
	"github.com/hubdeck/hubdeck-api/config"
	"github.com/hubdeck/hubdeck-api/membership"
)

// Plan struct mostly used for mocking tests
type Plan struct {
	Engine *membership.Engine
}

// SeatUsageResponse reports occupied seats against the plan's seat count.
// SeatLimit is zero when the team has no billing subscription attached.
type SeatUsageResponse struct {
	Members        int   `json:"members"`
	PendingInvites int   `json:"pendingInvites"`
	SeatLimit      int64 `json:"seatLimit,omitempty"`
	SeatsAvailable int64 `json:"seatsAvailable,omitempty"`
}

// SeatUsageHandler returns member and pending invite counts for a team, and
// when a stripe subscription id is supplied, the seat limit from the plan so
// clients can pre-check before inviting.
func (p Plan) SeatUsageHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	teamID := mux.Vars(r)["team_id"]
	usage, err := p.Engine.SeatUsage(ctx, teamID)
	if err != nil {
		config.ErrorStatus("failed to get seat usage", statusForError(err), w, err)
		return
	}

	response := SeatUsageResponse{
		Members:        usage.Members,
		PendingInvites: usage.PendingInvites,
	}

	if subID := r.URL.Query().Get("subscriptionId"); subID != "" {
		sub, err := subscription.Get(subID, &stripe.SubscriptionParams{})
		if err != nil {
			zap.S().Warnw("failed to fetch subscription for seat limit", "teamId", teamID, "subscriptionId", subID, "error", err)
		} else if len(sub.Items.Data) > 0 {
			response.SeatLimit = sub.Items.Data[0].Quantity
			occupied := int64(usage.Members + usage.PendingInvites)
			if response.SeatLimit > occupied {
				response.SeatsAvailable = response.SeatLimit - occupied
			}
		}
	}

	b, err := json.Marshal(response)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
