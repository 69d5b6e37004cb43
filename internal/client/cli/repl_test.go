package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	calls    []string
}

func (f *fakeExec) record(name string) error {
	f.calls = append(f.calls, name)
	return nil
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error { return f.record("register") }
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login")
}
func (f *fakeExec) Me(ctx context.Context) error { return f.record("me") }
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout")
}
func (f *fakeExec) ProvisionAdmin(ctx context.Context) error { return f.record("provision") }
func (f *fakeExec) ForgotPassword(ctx context.Context) error { return f.record("forgot") }
func (f *fakeExec) ResetPassword(ctx context.Context) error  { return f.record("reset") }
func (f *fakeExec) UploadDocument(ctx context.Context) error { return f.record("upload") }
func (f *fakeExec) Keygen(ctx context.Context) error         { return f.record("keygen") }

func silence(t *testing.T) *[]string {
	t.Helper()
	var printed []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		parts := make([]string, 0, len(a))
		for _, v := range a {
			if s, ok := v.(string); ok {
				parts = append(parts, s)
			}
		}
		printed = append(printed, strings.Join(parts, " "))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &printed
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	printed := silence(t)

	input := strings.Join([]string{
		"help",
		"register",
		"login",
		"help",
		"me",
		"upload",
		"foobar",
		"",
		"logout",
		"keygen",
		"exit",
		"me",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewReader(strings.NewReader(input)))

	assert.Equal(t, []string{"register", "login", "me", "upload", "logout", "keygen"}, exec.calls)
	assert.Contains(t, *printed, "Unknown command: foobar")
	assert.Contains(t, *printed, "Available commands: me, upload, logout, exit")
	assert.Contains(t, *printed, "Bye!")
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	silence(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("forgot\nreset")))

	assert.Equal(t, []string{"forgot", "reset"}, exec.calls)
}

func TestDispatch_Unknown(t *testing.T) {
	ok, err := dispatch(context.Background(), &fakeExec{}, "addnote")
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestPositional(t *testing.T) {
	got := positional([]string{"-a", "http://x", "-t=5", "provision", "-k", "keys"})
	assert.Equal(t, []string{"provision"}, got)
	assert.Empty(t, positional([]string{"-c", "cfg.json"}))
}
