package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wakacard/pkg/avatar"
	"github.com/matzehuels/wakacard/pkg/card"
	"github.com/matzehuels/wakacard/pkg/errors"
	"github.com/matzehuels/wakacard/pkg/pipeline"
	"github.com/matzehuels/wakacard/pkg/stats"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output     string // output PNG path, {user}.png when empty
	user       string // username for the title and avatar lookup
	avatarFile string // local avatar image
	avatarURL  string // avatar image URL
	noAvatar   bool   // draw without an avatar
	variant    string // geometry variant
	timestamp  string // preformatted watermark text
	summary    bool   // input is a card summary rather than a stats payload
	noCache    bool   // bypass the configured cache
	refresh    bool   // re-render even on a cache hit
}

// renderCommand creates the render command for drawing a card from stats.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render <stats.json|->",
		Short: "Render a stats card PNG",
		Long: `Render a stats card from a stats payload file, or from stdin when the
argument is "-". The avatar is fetched for --user unless --avatar,
--avatar-url or --no-avatar is given.`,
		Example: `  wakacard render stats.json --user alice
  curl -s "$STATS_URL" | wakacard render - --user alice -o card.png
  wakacard render summary.json --summary --no-avatar --variant alt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRender(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output file (default {user}.png)")
	f.StringVarP(&opts.user, "user", "u", "", "username shown on the card and used for the avatar")
	f.StringVar(&opts.avatarFile, "avatar", "", "local avatar image file")
	f.StringVar(&opts.avatarURL, "avatar-url", "", "fetch the avatar from this URL")
	f.BoolVar(&opts.noAvatar, "no-avatar", false, "render without an avatar")
	f.StringVar(&opts.variant, "variant", "", "layout variant: default or alt (default from config)")
	f.StringVar(&opts.timestamp, "timestamp", "", "watermark text (default: now, in the configured layout)")
	f.BoolVar(&opts.summary, "summary", false, "treat the input as a card summary JSON")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	f.BoolVar(&opts.refresh, "refresh", false, "ignore cached cards and re-render")
	cmd.MarkFlagsMutuallyExclusive("avatar", "avatar-url", "no-avatar")

	return cmd
}

func (c *CLI) runRender(cmd *cobra.Command, input string, opts renderOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	cfg := c.config()

	pipeOpts := pipeline.Options{
		Username:  opts.user,
		AvatarURL: opts.avatarURL,
		NoAvatar:  opts.noAvatar,
		Timestamp: opts.timestamp,
		Variant:   opts.variant,
		Refresh:   opts.refresh,
		Logger:    logger,
	}
	if pipeOpts.Variant == "" {
		pipeOpts.Variant = cfg.Card.Variant
	}
	if err := readInput(cmd, input, opts.summary, &pipeOpts); err != nil {
		return err
	}
	if opts.avatarFile != "" {
		pipeOpts.Avatar = avatar.Load(opts.avatarFile, logger)
		if pipeOpts.Avatar == nil {
			printWarning("Could not load avatar %s, rendering without it", opts.avatarFile)
			pipeOpts.NoAvatar = true
		}
	}

	store, err := c.openCache(ctx, cfg, opts.noCache)
	if err != nil {
		return err
	}
	defer store.Close()

	runner, err := buildRunner(cfg, store, logger)
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	spin := newSpinner(ctx, cmd.ErrOrStderr(), "Rendering card...")
	spin.Start()
	res, err := runner.Execute(ctx, pipeOpts)
	if err != nil {
		spin.Fail("Render failed")
		return err
	}
	spin.Stop()
	prog.done("Rendered card for " + displayName(res.Summary))

	out := opts.output
	if out == "" {
		out = outputName(res.Summary)
	}
	if err := os.WriteFile(out, res.PNG, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	printSuccess("Card rendered")
	printFile(out)
	printCardStats(res.Summary, res.CacheHit)
	if !res.AvatarFound && !pipeOpts.NoAvatar {
		printDetail("no avatar found")
	}
	if c.verbose {
		printLanguages(res.Summary)
	}
	return nil
}

// readInput decodes the render input into opts. "-" reads from stdin.
func readInput(cmd *cobra.Command, input string, summary bool, opts *pipeline.Options) error {
	var r io.Reader
	if input == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(input)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "open %s", input)
		}
		defer f.Close()
		r = f
	}

	if summary {
		var s card.StatsSummary
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidStats, err, "decode summary")
		}
		opts.Summary = &s
		return nil
	}

	p, err := stats.Decode(r)
	if err != nil {
		return err
	}
	opts.Stats = p
	return nil
}

func displayName(s card.StatsSummary) string {
	if s.Username == "" {
		return "anonymous user"
	}
	return s.Username
}

// outputName is the default output file for a summary. Usernames that are
// not safe as file names fall back to card.png.
func outputName(s card.StatsSummary) string {
	if errors.ValidateUsername(s.Username) != nil {
		return "card.png"
	}
	return s.Username + ".png"
}
