package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/hubdeck/hubdeck-api/api"
	"github.com/hubdeck/hubdeck-api/api/scheduler"
	"github.com/hubdeck/hubdeck-api/config"
	"github.com/hubdeck/hubdeck-api/databases"
	"github.com/hubdeck/hubdeck-api/membership"
	"github.com/hubdeck/hubdeck-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	DB        databases.CollectionHelper
	Config    config.Config
	Scheduler *scheduler.Scheduler
	dbHelper  databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	teamDB := databases.NewTeamDatabase(a.dbHelper)
	userDB := databases.NewUserDatabase(a.dbHelper)
	pendingDB := databases.NewPendingEmailDatabase(a.dbHelper)

	socketServer := InitializeSocketIO()

	repo := membership.NewRepository(teamDB, userDB, pendingDB)
	notifier := membership.NewSendGridNotifier()
	engine := membership.NewEngine(repo, membership.NewSocketPropagator(socketServer), notifier)
	invites := membership.NewInviteManager(repo, engine, notifier, a.linkCodec())

	t := Team{Engine: engine, Repo: repo, DB: teamDB}
	i := Invite{Manager: invites}
	u := User{DB: userDB}
	p := Plan{Engine: engine}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	// socket.io endpoint for team event propagation
	r.Handle("/socket.io/", socketServer)

	// websocket endpoint for per-user notifications
	r.HandleFunc("/ws/notifications", HandleNotificationsWebSocket)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(30 * time.Second))

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/team", api.Middleware(http.HandlerFunc(t.CreateTeamHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}", api.Middleware(http.HandlerFunc(t.TeamHandler))).Methods("GET")
	apiCreate.Handle("/team/{team_id}", api.Middleware(http.HandlerFunc(t.UpdateTeamDetailsHandler))).Methods("PATCH")
	apiCreate.Handle("/team/{team_id}/members", api.Middleware(http.HandlerFunc(t.TeamMembersHandler))).Methods("GET")
	apiCreate.Handle("/team/{team_id}/members", api.Middleware(http.HandlerFunc(t.AddMemberHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}/members/{user_id}", api.Middleware(http.HandlerFunc(t.RemoveMemberHandler))).Methods("DELETE")
	apiCreate.Handle("/team/{team_id}/admins", api.Middleware(http.HandlerFunc(t.AddAdminHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}/admins/{user_id}", api.Middleware(http.HandlerFunc(t.DemoteAdminHandler))).Methods("DELETE")
	apiCreate.Handle("/team/{team_id}/transfer-ownership", api.Middleware(http.HandlerFunc(t.TransferOwnershipHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}/leave", api.Middleware(http.HandlerFunc(t.LeaveTeamHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}/seat-usage", api.Middleware(http.HandlerFunc(p.SeatUsageHandler))).Methods("GET")

	apiCreate.Handle("/team/{team_id}/invites", api.Middleware(http.HandlerFunc(i.CreateInviteHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}/invites/accept", api.Middleware(http.HandlerFunc(i.AcceptInviteHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}/invites/decline", api.Middleware(http.HandlerFunc(i.DeclineInviteHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}/invites/{invite_id}/resend", api.Middleware(http.HandlerFunc(i.ResendInviteHandler))).Methods("POST")
	apiCreate.Handle("/team/{team_id}/invites/{invite_id}", api.Middleware(http.HandlerFunc(i.RevokeInviteHandler))).Methods("DELETE")
	apiCreate.Handle("/invites/pending", api.Middleware(http.HandlerFunc(i.PendingInvitesHandler))).Methods("GET")

	// link-based invite flows reached from emails, no bearer token required
	apiCreate.Handle("/invites/accept", http.HandlerFunc(i.AcceptInviteLinkHandler)).Methods("GET")
	apiCreate.Handle("/invites/resend", http.HandlerFunc(i.ResendInviteLinkHandler)).Methods("POST")

	apiCreate.Handle("/user/create-user", http.HandlerFunc(u.UserCreateHandler)).Methods("POST")
	apiCreate.Handle("/user/check-user", http.HandlerFunc(u.UserCheckEmailHandler)).Methods("POST")
	apiCreate.Handle("/user/{user_id}/teams", api.Middleware(http.HandlerFunc(u.UserTeamsHandler))).Methods("GET")
	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(u.UserHandler))).Methods("GET")

	return r
}

func (a *App) linkCodec() membership.LinkCodec {
	if a.Config.InviteLinkSecret != "" {
		return &membership.EmailBoundLinkCodec{
			BaseURL: a.Config.BaseURL,
			Secret:  []byte(a.Config.InviteLinkSecret),
		}
	}
	return &membership.OpaqueLinkCodec{BaseURL: a.Config.BaseURL}
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("hubdeck-api has connected to the database")

	// initialize stripe
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		return fmt.Errorf("stripe secret key is not set")
	}
	stripe.Key = stripeKey

	// initialize api router
	a.initializeRoutes()

	// nightly mirror reconciliation
	a.Scheduler = scheduler.NewScheduler(membership.NewReconciler(
		databases.NewTeamDatabase(a.dbHelper),
		databases.NewUserDatabase(a.dbHelper),
	))
	a.Scheduler.Start()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
