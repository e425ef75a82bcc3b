package workflow

import (
	"context"
	"errors"
	"image"

	"github.com/xkilldash9x/vzpilot/api/schemas"
	"github.com/xkilldash9x/vzpilot/internal/keyboard"
	"github.com/xkilldash9x/vzpilot/internal/perception"
)

// ErrPasswordRejected is returned by the account step when the guest refuses the password.
var ErrPasswordRejected = errors.New("workflow: password does not meet the keyboard requirements")

// Driver is what the setup scripts need from an automator.
type Driver interface {
	WaitForState(ctx context.Context, state schemas.MachineState) error
	WaitForDisplay(ctx context.Context) error
	WaitForText(ctx context.Context, cond perception.TextCondition) error
	WaitForString(ctx context.Context, s string) error
	HasText(ctx context.Context, cond perception.TextCondition) (bool, error)
	WaitForImageAt(ctx context.Context, ref image.Image, point image.Point) error
	Press(ctx context.Context, k keyboard.Key) error
	PressTimes(ctx context.Context, k keyboard.Key, n int) error
	Type(ctx context.Context, s string) error
}

// AccountOptions fills in the "Create a Computer Account" screen.
type AccountOptions struct {
	FullName string
	Password string
	Hint     string
	// Submit presses the Continue button once the form is filled.
	Submit bool
}

// SetupOptions parameterize the setup assistant scripts.
type SetupOptions struct {
	Account AccountOptions
	// Globe is the reference image of the language picker's globe icon.
	// When nil the language screen is recognized by its text instead.
	Globe   image.Image
	GlobeAt image.Point
}

// DefaultGlobePoint is where the globe icon sits on a 1920x1200 display.
var DefaultGlobePoint = image.Pt(915, 682)

// DefaultSetupOptions returns the options used when none are configured.
func DefaultSetupOptions() SetupOptions {
	return SetupOptions{
		Account: AccountOptions{FullName: "admin", Password: "secret123"},
		GlobeAt: DefaultGlobePoint,
	}
}

// SetupAssistant returns the steps that walk a freshly installed macOS guest
// through the setup assistant up to account creation.
func SetupAssistant(d Driver, opts SetupOptions) []Definition {
	s := &setupScript{d: d, opts: opts}
	return []Definition{
		{ID: "booting", Name: "Booting", Body: s.booting},
		{ID: "hello", Name: "Hello", Body: s.hello},
		{ID: "language", Name: "Language", Body: s.language},
		{ID: "country", Name: "Country or Region", Body: s.country},
		{ID: "localization", Name: "Written and Spoken Languages", Body: s.localization},
		{ID: "accessibility", Name: "Accessibility", Body: s.accessibility},
		{ID: "privacy", Name: "Data & Privacy", Body: s.privacy},
		{ID: "migration", Name: "Migration Assistant", Body: s.migration},
		{ID: "appleid", Name: "Apple ID", Body: s.appleID},
		{ID: "terms", Name: "Terms and Conditions", Body: s.terms},
		{ID: "account", Name: "Create a Computer Account", Body: s.account},
	}
}

type setupScript struct {
	d    Driver
	opts SetupOptions
}

// all runs actions in order and stops at the first error.
func all(ctx context.Context, actions ...func(context.Context) error) error {
	for _, act := range actions {
		if err := act(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *setupScript) waitFor(text string) func(context.Context) error {
	return func(ctx context.Context) error { return s.d.WaitForString(ctx, text) }
}

func (s *setupScript) waitUntil(cond perception.TextCondition) func(context.Context) error {
	return func(ctx context.Context) error { return s.d.WaitForText(ctx, cond) }
}

func (s *setupScript) press(k keyboard.Key) func(context.Context) error {
	return func(ctx context.Context) error { return s.d.Press(ctx, k) }
}

func (s *setupScript) pressTimes(k keyboard.Key, n int) func(context.Context) error {
	return func(ctx context.Context) error { return s.d.PressTimes(ctx, k, n) }
}

func (s *setupScript) typeText(text string) func(context.Context) error {
	return func(ctx context.Context) error { return s.d.Type(ctx, text) }
}

// advance waits for a screen by its title, then tabs to its Continue button and presses it.
func (s *setupScript) advance(ctx context.Context, title string, tabs int) error {
	return all(ctx, s.waitFor(title), s.pressTimes(keyboard.Tab, tabs), s.press(keyboard.Space))
}

func (s *setupScript) booting(ctx context.Context) error {
	if err := s.d.WaitForState(ctx, schemas.MachineRunning); err != nil {
		return err
	}
	return s.d.WaitForDisplay(ctx)
}

func (s *setupScript) hello(ctx context.Context) error {
	return all(ctx, s.waitFor("get started"), s.press(keyboard.Return))
}

func (s *setupScript) language(ctx context.Context) error {
	var appear func(context.Context) error
	if s.opts.Globe != nil {
		appear = func(ctx context.Context) error { return s.d.WaitForImageAt(ctx, s.opts.Globe, s.opts.GlobeAt) }
	} else {
		appear = s.waitUntil(perception.All("english", "language"))
	}
	return all(ctx,
		appear,
		s.press(keyboard.Tab),
		s.press(keyboard.Return),
		s.waitUntil(perception.None("language", "english", "english (uk)")),
	)
}

func (s *setupScript) country(ctx context.Context) error {
	return s.advance(ctx, "select your country or region", 3)
}

func (s *setupScript) localization(ctx context.Context) error {
	return s.advance(ctx, "written and spoken languages", 3)
}

func (s *setupScript) accessibility(ctx context.Context) error {
	return all(ctx,
		s.waitFor("accessibility"),
		s.pressTimes(keyboard.Tab, 6),
		s.press(keyboard.Space),
		s.waitUntil(perception.None("accessibility")),
	)
}

func (s *setupScript) privacy(ctx context.Context) error {
	return s.advance(ctx, "data & privacy", 3)
}

func (s *setupScript) migration(ctx context.Context) error {
	return s.advance(ctx, "migration assistant", 3)
}

func (s *setupScript) appleID(ctx context.Context) error {
	return all(ctx,
		s.waitFor("create new apple id"),
		// Shift+Tab twice lands on "Set Up Later".
		s.pressTimes(keyboard.Tab.Shift(), 2),
		s.press(keyboard.Space),
		s.waitFor("are you sure you want to skip"),
		s.press(keyboard.Return),
	)
}

func (s *setupScript) terms(ctx context.Context) error {
	return all(ctx,
		s.waitFor("terms and conditions"),
		s.pressTimes(keyboard.Tab, 2),
		s.press(keyboard.Space),
		// Confirmation sheet.
		s.waitUntil(perception.All("i have read", "disagree", "agree")),
		s.press(keyboard.Tab),
		s.press(keyboard.Space),
	)
}

func (s *setupScript) account(ctx context.Context) error {
	acct := s.opts.Account
	err := all(ctx,
		s.waitFor("create a computer account"),
		s.typeText(acct.FullName),
		// The account name is derived from the full name.
		s.press(keyboard.Tab),
		s.press(keyboard.Tab),
		s.typeText(acct.Password),
		s.press(keyboard.Tab),
	)
	if err != nil {
		return err
	}

	rejected, err := s.d.HasText(ctx, perception.Any("keyboard requirements"))
	if err != nil {
		return err
	}
	if rejected {
		return ErrPasswordRejected
	}

	steps := []func(context.Context) error{
		s.typeText(acct.Password),
		s.press(keyboard.Tab),
	}
	if acct.Hint != "" {
		steps = append(steps, s.typeText(acct.Hint))
	}
	steps = append(steps, s.pressTimes(keyboard.Tab, 2))
	if acct.Submit {
		steps = append(steps, s.press(keyboard.Space))
	}
	return all(ctx, steps...)
}
