package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"medinsight/cmd/medinsight/ui"
	"medinsight/internal/api"
	"medinsight/internal/content"
	"medinsight/internal/disease"
	"medinsight/internal/history"
	"medinsight/internal/notify"
	"medinsight/internal/predict"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var diseasesCmd = &cobra.Command{
	Use:   "diseases",
	Short: "List the supported diseases",
	RunE:  listDiseases,
}

// fieldsCmd prints the form a disease expects
var fieldsCmd = &cobra.Command{
	Use:   "fields <disease>",
	Short: "Show the form fields of a disease",
	Args:  cobra.ExactArgs(1),
	RunE:  listFields,
}

var infoCmd = &cobra.Command{
	Use:   "info <disease>",
	Short: "Show information about a disease",
	Args:  cobra.ExactArgs(1),
	RunE:  showInfo,
}

var pageCmd = &cobra.Command{
	Use:       "page <home|privacy|terms>",
	Short:     "Show a static page",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(content.Home), string(content.Privacy), string(content.Terms)},
	RunE:      showPage,
}

// predictCmd runs one prediction
var predictCmd = &cobra.Command{
	Use:   "predict <disease>",
	Short: "Predict disease risk from form values",
	Long: `Submits the disease form and prints the prediction.

Checkbox and switch fields default to 0 when omitted. Use 'medinsight fields
<disease>' to list the expected names.

Example:
  medinsight predict diabetes -f pregnancies=2 -f glucose=120 -f blood_pressure=70 ...`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

// recommendCmd predicts, then asks for recommendations based on that result
var recommendCmd = &cobra.Command{
	Use:   "recommend <disease>",
	Short: "Generate personalized recommendations",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecommend,
}

var chatCmd = &cobra.Command{
	Use:   "chat <disease> <message>",
	Short: "Ask the health assistant a question",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runChat,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List your past prediction sessions",
	RunE:  listHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <disease> <session-id>",
	Short: "Show a stored session",
	Args:  cobra.ExactArgs(2),
	RunE:  showHistory,
}

func listDiseases(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, info := range disease.All() {
		fmt.Fprintf(out, "%s %-12s %s\n", info.Emoji, info.ID, info.Name)
	}
	return nil
}

func listFields(cmd *cobra.Command, args []string) error {
	d, err := disease.Parse(args[0])
	if err != nil {
		return err
	}
	schema, err := disease.SchemaFor(d)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, f := range schema.Fields {
		fmt.Fprintf(out, "%-28s %-9s %s\n", f.Name, f.Kind, describeField(f))
	}
	return nil
}

func describeField(f disease.Field) string {
	var b strings.Builder
	b.WriteString(f.Label)
	if f.Unit != "" {
		fmt.Fprintf(&b, " (%s)", f.Unit)
	}
	switch {
	case f.Min != nil && f.Max != nil:
		fmt.Fprintf(&b, " [%g-%g]", *f.Min, *f.Max)
	case f.Min != nil:
		fmt.Fprintf(&b, " [>= %g]", *f.Min)
	case f.Max != nil:
		fmt.Fprintf(&b, " [<= %g]", *f.Max)
	}
	return b.String()
}

func showInfo(cmd *cobra.Command, args []string) error {
	fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(content.DiseaseInfo(args[0])))
	return nil
}

func showPage(cmd *cobra.Command, args []string) error {
	md, err := content.Get(content.Page(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(md))
	return nil
}

// renderMarkdown styles md for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	width, size := 80, 0
	if cfg != nil {
		width, size = cfg.UI.WordWrap, cfg.UI.CacheSize
	}
	r, err := ui.NewMarkdown("", size)
	if err != nil {
		return md
	}
	return r.Render(md, width)
}

// parseFields splits repeated name=value flags, keeping their order.
func parseFields(raw []string) ([][2]string, error) {
	out := make([][2]string, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --field %q (want name=value)", kv)
		}
		out = append(out, [2]string{strings.TrimSpace(name), strings.TrimSpace(value)})
	}
	return out, nil
}

// openRoute pre-loads a stored session, if one was named, and opens the
// disease route. A failed pre-load is reported and the route opens unseeded.
func openRoute(ctx context.Context, s *services, tag, sessionID string) (*predict.Route, error) {
	hist, err := predict.LoadHistory(ctx, s.client, tag, sessionID)
	if errors.Is(err, disease.ErrUnknownDisease) {
		return nil, err
	}
	if err != nil {
		s.sink.Show(history.FetchFailedNotice, notify.Error)
	}
	return predict.Open(ctx, predict.Deps{API: s.client, Store: s.kv, Notify: s.sink}, predict.Params{
		Disease:   tag,
		SessionID: sessionID,
		History:   hist,
	})
}

func runPredict(cmd *cobra.Command, args []string) error {
	return submitForm(cmd, args[0], predict.ActionPredict)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	return submitForm(cmd, args[0], predict.ActionRecommend)
}

func submitForm(cmd *cobra.Command, tag string, action predict.Action) error {
	raw, _ := cmd.Flags().GetStringArray("field")
	sessionID, _ := cmd.Flags().GetString("session")
	fields, err := parseFields(raw)
	if err != nil {
		return err
	}
	if _, err := disease.Parse(tag); err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, s *services) error {
		route, err := openRoute(ctx, s, tag, sessionID)
		if err != nil {
			return err
		}
		defer route.Close()

		for _, f := range fields {
			if err := route.SetField(f[0], f[1]); err != nil {
				return err
			}
		}

		logger.Info("Submitting form",
			zap.String("disease", tag),
			zap.String("action", string(action)),
			zap.String("session_id", route.SessionID()))

		if err := route.Submit(ctx, action); err != nil {
			var verr *disease.ValidationError
			if errors.As(err, &verr) {
				printProblems(cmd.ErrOrStderr(), verr)
			}
			return reported(err)
		}

		v := route.View()
		out := cmd.OutOrStdout()
		if action == predict.ActionPredict {
			fmt.Fprintf(out, "Prediction: %s\n", v.Prediction)
		} else {
			fmt.Fprint(out, renderMarkdown("## Recommendations\n\n"+v.Recommendation))
		}
		fmt.Fprintf(out, "Session:    %s\n", v.SessionID)
		return nil
	})
}

func printProblems(w io.Writer, verr *disease.ValidationError) {
	fmt.Fprintln(w, "✗ The form has problems:")
	for _, p := range verr.Problems {
		fmt.Fprintf(w, "  - %s (%s) %s\n", p.Label, p.Field, p.Reason)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	tag := args[0]
	message := strings.Join(args[1:], " ")
	sessionID, _ := cmd.Flags().GetString("session")
	if _, err := disease.Parse(tag); err != nil {
		return err
	}

	return withServices(cmd, func(ctx context.Context, s *services) error {
		route, err := openRoute(ctx, s, tag, sessionID)
		if err != nil {
			return err
		}
		defer route.Close()

		if err := route.Send(ctx, message); err != nil {
			if errors.Is(err, predict.ErrEmptyMessage) {
				return err
			}
			return reported(err)
		}

		turns := route.View().Turns
		reply := turns[len(turns)-1]
		fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(reply.Message))
		fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n", route.SessionID())
		return nil
	})
}

func listHistory(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, s *services) error {
		if _, ok := s.auth.User(); !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in. Run 'medinsight login' first.")
			return nil
		}
		entries, err := history.Fetch(ctx, s.client, s.sink)
		if err != nil {
			return reported(err)
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No prediction history yet.")
			return nil
		}
		for _, e := range entries {
			when := e.UpdatedAt
			if t, ok := e.UpdatedTime(); ok {
				when = t.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "%-16s %s %-11s %-13s %s\n", when, e.Emoji(), e.Disease, e.Label(), e.SessionID)
		}
		return nil
	})
}

func showHistory(cmd *cobra.Command, args []string) error {
	tag, sessionID := args[0], args[1]
	if _, err := disease.Parse(tag); err != nil {
		return err
	}
	return withServices(cmd, func(ctx context.Context, s *services) error {
		hist, err := predict.LoadHistory(ctx, s.client, tag, sessionID)
		if err != nil {
			s.sink.Show(api.Message(err), notify.Error)
			return reported(err)
		}
		out := cmd.OutOrStdout()
		if hist == nil {
			fmt.Fprintln(out, "No stored data for this session.")
			return nil
		}
		printSession(out, tag, hist)
		return nil
	})
}

func printSession(w io.Writer, tag string, h *api.SessionHistory) {
	if h.Prediction != "" {
		fmt.Fprintf(w, "Prediction: %s\n", h.Prediction)
	}
	if d, err := disease.Parse(tag); err == nil && len(h.InputData) > 0 {
		if schema, err := disease.SchemaFor(d); err == nil {
			fmt.Fprintln(w, "Form:")
			for _, f := range schema.Fields {
				if v, ok := h.InputData[f.Name]; ok {
					fmt.Fprintf(w, "  %-28s %s\n", f.Label, v)
				}
			}
		}
	}
	if h.Recommendation != "" {
		fmt.Fprint(w, renderMarkdown("## Recommendations\n\n"+h.Recommendation))
	}
	for _, m := range h.Messages {
		who := "Assistant"
		if m.User {
			who = "You"
		}
		fmt.Fprintf(w, "%s: %s\n", who, m.Message)
	}
}
