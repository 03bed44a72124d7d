package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/apperror"
	"github.com/septivank/water-meter-agent/internal/auth"
	"github.com/septivank/water-meter-agent/internal/config"
	"github.com/septivank/water-meter-agent/internal/eligibility"
	"github.com/septivank/water-meter-agent/internal/lookup"
	"github.com/septivank/water-meter-agent/internal/mq"
	"github.com/septivank/water-meter-agent/internal/repository"
	"github.com/septivank/water-meter-agent/internal/service"
	"github.com/septivank/water-meter-agent/internal/session"
	"github.com/septivank/water-meter-agent/internal/validator"
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitValidation  = 2
	exitConflict    = 3
	exitNotFound    = 4
	exitNetwork     = 5
	exitAuth        = 6
	exitInterrupted = 130
)

// historySize is how many journal entries status prints
const historySize = 5

var errNotConfirmed = errors.New("submission aborted: the lower index was not confirmed")

type agentDeps struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	Auth       *auth.Service
	Lookup     *lookup.Adapter
	Validator  *validator.Validator
	Submission *service.SubmissionService
	Billing    *service.BillingService
	Repository *repository.Repository
	MQ         *mq.Connection
	Reviews    *service.ReviewProcessor
}

// agent executes one command against the wired services
type agent struct {
	agentDeps
	in  *bufio.Reader
	out io.Writer
	err io.Writer
}

func newAgent(deps agentDeps, in io.Reader, out, errOut io.Writer) *agent {
	return &agent{
		agentDeps: deps,
		in:        bufio.NewReader(in),
		out:       out,
		err:       errOut,
	}
}

// runCommand runs the parsed command once the app has started and shuts the app down with its exit code
func runCommand(lc fx.Lifecycle, shutdowner fx.Shutdowner, cmd *Command, deps agentDeps) {
	a := newAgent(deps, os.Stdin, os.Stdout, os.Stderr)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				code := a.run(ctx, cmd)
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					deps.Logger.Debug("shutdown after command", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func (a *agent) run(ctx context.Context, cmd *Command) int {
	err := a.dispatch(ctx, cmd)
	if err == nil {
		return exitOK
	}
	a.Logger.Debug("command failed", zap.String("command", cmd.Name), zap.Error(err))
	fmt.Fprintln(a.err, "error:", userMessage(err))
	return exitCode(err)
}

func (a *agent) dispatch(ctx context.Context, cmd *Command) error {
	switch cmd.Name {
	case "login":
		return a.login(ctx, cmd)
	case "logout":
		return a.logout(ctx)
	case "me":
		return a.me(ctx)
	case "lookup":
		return a.lookup(ctx, cmd.Code)
	case "status":
		return a.status(ctx, cmd.Code)
	case "submit":
		return a.submit(ctx, cmd)
	case "bills":
		return a.bills(ctx, cmd.Code)
	case "complain":
		return a.complain(ctx, cmd)
	case "watch":
		return a.watch(ctx)
	}
	return fmt.Errorf("unknown command %q", cmd.Name)
}

func (a *agent) login(ctx context.Context, cmd *Command) error {
	user, err := a.Auth.Login(ctx, cmd.Email, cmd.Password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", displayUser(user.Name, user.Email))
	return nil
}

func (a *agent) logout(ctx context.Context) error {
	if err := a.Auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *agent) me(ctx context.Context) error {
	user, err := a.Auth.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (id %s, role %s)\n", displayUser(user.Name, user.Email), user.ID, orDash(user.Role))
	return nil
}

func (a *agent) lookup(ctx context.Context, code string) error {
	result, err := a.Lookup.Lookup(ctx, code)
	if err != nil {
		return err
	}
	snap := result.Snapshot
	fmt.Fprintf(a.out, "customer:       %s %s\n", snap.Customer.Code, snap.Customer.Name)
	if snap.Customer.Address != "" {
		fmt.Fprintf(a.out, "address:        %s\n", snap.Customer.Address)
	}
	fmt.Fprintf(a.out, "meter:          %s %s\n", snap.Meter.ID, snap.Meter.SerialNumber)
	fmt.Fprintf(a.out, "previous index: %s\n", snap.PreviousIndex.String())
	fmt.Fprintf(a.out, "eligibility:    %s\n", describeEligibility(result.Eligibility))
	return nil
}

func (a *agent) status(ctx context.Context, code string) error {
	result, err := a.Lookup.Lookup(ctx, code)
	if err != nil {
		return err
	}
	elig := result.Eligibility
	fmt.Fprintf(a.out, "meter:          %s\n", result.Snapshot.Meter.ID)
	fmt.Fprintf(a.out, "readings:       %d\n", len(result.Readings))
	fmt.Fprintf(a.out, "latest status:  %s\n", orDash(elig.LatestStatus))
	fmt.Fprintf(a.out, "eligibility:    %s\n", describeEligibility(elig))

	if a.Repository == nil {
		return nil
	}
	entries, err := a.Repository.RecentSubmissions(ctx, result.Snapshot.Meter.ID.String(), historySize)
	if err != nil {
		a.Logger.Warn("failed to read submission journal", zap.Error(err))
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	fmt.Fprintln(a.out, "\nsubmissions from this agent:")
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPTED\tINDEX\tCONSUMPTION\tOUTCOME\tREVIEW")
	for _, e := range entries {
		review := "-"
		if e.ReviewStatus != nil {
			review = *e.ReviewStatus
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.AttemptedAt.Local().Format("2006-01-02 15:04"), e.CurrentIndex, e.Consumption, e.Outcome, review)
	}
	return w.Flush()
}

func (a *agent) submit(ctx context.Context, cmd *Command) error {
	result, err := a.Lookup.Lookup(ctx, cmd.Code)
	if err != nil {
		return err
	}

	sess := session.New(a.Validator)
	sess.Resolve(result.Snapshot, result.Eligibility)
	if sess.State() == session.StateBlocked {
		return apperror.Conflict(sess.BlockedReason())
	}
	if reason := result.Eligibility.BlockedReason; reason != "" {
		fmt.Fprintf(a.out, "note: %s\n", reason)
	}

	inputs := []error{
		sess.SetIndex(cmd.Index),
		sess.SetPhoto(cmd.Photo),
		sess.SetInaccessible(cmd.Inaccessible),
		sess.SetComments(cmd.Comments),
		sess.SetLocation(cmd.Location),
	}
	if err := errors.Join(inputs...); err != nil {
		return err
	}

	// leaving mid-submission abandons the session; an in-flight call still completes
	stop := context.AfterFunc(ctx, sess.Abandon)
	defer stop()

	progress := func(p service.Phase) {
		fmt.Fprintf(a.out, "... %s\n", p)
	}

	for {
		res, err := a.Submission.Submit(ctx, sess, progress)
		if errors.Is(err, session.ErrConfirmationRequired) {
			if !cmd.Yes && !a.confirm(fmt.Sprintf("the entered index is lower than the previous index %s, submit anyway? [y/N] ",
				result.Snapshot.PreviousIndex.String())) {
				return errNotConfirmed
			}
			sess.ConfirmLowerIndex()
			continue
		}
		if err != nil {
			return err
		}

		if res.Warning != "" {
			fmt.Fprintf(a.out, "warning: %s\n", res.Warning)
		}
		fmt.Fprintf(a.out, "reading %s submitted for meter %s\n", orDash(res.Reading.ID.String()), res.Payload.MeterID)
		fmt.Fprintf(a.out, "index %s, previous %s, consumption %s (%s)\n",
			res.Payload.CurrentIndex, res.Payload.PreviousIndex, res.Payload.Consumption, res.Payload.AccessReason)
		fmt.Fprintf(a.out, "status: %s\n", sess.BlockedReason())
		return nil
	}
}

func (a *agent) confirm(prompt string) bool {
	fmt.Fprint(a.out, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (a *agent) bills(ctx context.Context, code string) error {
	customer, bills, err := a.Billing.Bills(ctx, code)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "bills for %s %s\n", customer.Code, customer.Name)
	if len(bills) == 0 {
		fmt.Fprintln(a.out, "no bills")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tAMOUNT\tSTATUS\tDUE")
	for _, b := range bills {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", orDash(b.Period), b.Amount.StringFixed(2), orDash(b.Status), orDash(b.DueDate))
	}
	return w.Flush()
}

func (a *agent) complain(ctx context.Context, cmd *Command) error {
	complaint, err := a.Billing.Complain(ctx, cmd.Code, cmd.Subject, cmd.Message)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "complaint %s filed (%s)\n", orDash(complaint.ID.String()), orDash(complaint.Status))
	return nil
}

func (a *agent) watch(ctx context.Context) error {
	if a.MQ == nil || a.Reviews == nil {
		return apperror.Validation("watch needs both RABBITMQ_URL and DATABASE_URL to be set")
	}
	rc := a.Config.RabbitMQ
	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    a.MQ,
		Queue:         rc.ReviewQueue,
		DLQQueue:      rc.DLQQueue,
		Exchange:      rc.EventsExchange,
		RoutingKey:    rc.ReviewRoutingKey,
		PrefetchCount: rc.PrefetchCount,
		Logger:        a.Logger,
		Handler:       a.Reviews.ProcessMessage,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	fmt.Fprintf(a.out, "watching %s for review events, press Ctrl+C to stop\n", rc.ReviewQueue)
	return consumer.Run(ctx)
}

func describeEligibility(e eligibility.State) string {
	switch {
	case !e.StatusValidated:
		return "cannot submit: " + eligibility.ReasonNotVerified
	case e.IsBlocked:
		return "blocked: " + e.BlockedReason
	case e.BlockedReason != "":
		return "can submit (" + e.BlockedReason + ")"
	}
	return "can submit"
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrCancelled), errors.Is(err, errNotConfirmed):
		return err.Error()
	case errors.Is(err, session.ErrInvalidTransition):
		return "the reading cannot be submitted in its current state"
	}
	return apperror.UserMessage(err)
}

func exitCode(err error) int {
	if errors.Is(err, service.ErrCancelled) {
		return exitInterrupted
	}
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return exitValidation
	case apperror.KindConflict:
		return exitConflict
	case apperror.KindNotFound:
		return exitNotFound
	case apperror.KindNetwork:
		return exitNetwork
	case apperror.KindAuth:
		return exitAuth
	}
	return exitFailure
}

func displayUser(name, email string) string {
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email)
	case name != "":
		return name
	}
	return orDash(email)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
