package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/pquerna/otp/totp"
)

// ErrCaptchaRequired is returned when the login flow demands a CAPTCHA.
var ErrCaptchaRequired = errors.New("login requires a captcha")

const maxLoginRounds = 12

func sessionDir(override string) string {
	if override != "" {
		return override
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".go-twitterbot", "sessions")
}

func sessionPath(dir, username string) string {
	return filepath.Join(dir, username+".json")
}

type savedSession struct {
	AuthToken string    `json:"auth_token"`
	CT0       string    `json:"ct0"`
	SavedAt   time.Time `json:"saved_at"`
}

// saveSession persists auth_token and ct0 to disk.
func saveSession(dir, username, authToken, ct0 string) error {
	d := sessionDir(dir)
	if err := os.MkdirAll(d, 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(savedSession{AuthToken: authToken, CT0: ct0, SavedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	path := sessionPath(d, username)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write session %s: %w", path, err)
	}
	slog.Debug("session: saved", slog.String("user", username))
	return nil
}

// loadSession returns persisted cookies, or empty strings when none are saved
// or the saved copy is older than ttl.
func loadSession(dir, username string, ttl time.Duration) (authToken, ct0 string, err error) {
	data, err := os.ReadFile(sessionPath(sessionDir(dir), username))
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", err
	}
	var s savedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return "", "", err
	}
	if time.Since(s.SavedAt) > ttl {
		slog.Debug("session: expired", slog.String("user", username))
		return "", "", nil
	}
	return s.AuthToken, s.CT0, nil
}

// relogin discards the account's cookies and logs in again.
func (c *Client) relogin(acc *Account) error {
	acc.SetCredentials("", "")
	_ = os.Remove(sessionPath(sessionDir(c.cfg.SessionDir), acc.Username))

	if err := c.loadOrLogin(context.Background(), acc); err != nil {
		return fmt.Errorf("relogin %s: %w", acc.Username, err)
	}
	acc.Reset()
	slog.Info("session: relogin succeeded", slog.String("user", acc.Username))
	return nil
}

// loadOrLogin prefers a saved session, then provided cookies, then a fresh login.
func (c *Client) loadOrLogin(ctx context.Context, acc *Account) error {
	authToken, ct0, err := loadSession(c.cfg.SessionDir, acc.Username, c.cfg.SessionTTL)
	if err != nil {
		slog.Warn("session: error loading saved session", slog.String("user", acc.Username), slog.Any("error", err))
	}
	if authToken != "" && ct0 != "" {
		acc.SetCredentials(authToken, ct0)
		slog.Info("session: loaded from disk", slog.String("user", acc.Username))
		return nil
	}

	if tok, csrf, _ := acc.Credentials(); tok != "" && csrf != "" {
		acc.SetCredentials(tok, csrf)
		slog.Info("session: using provided cookies", slog.String("user", acc.Username))
		c.persist(acc)
		return nil
	}

	if acc.Password == "" {
		return fmt.Errorf("no session and no password for %s", acc.Username)
	}
	if err := c.login(ctx, acc, c.clientForAccount(acc)); err != nil {
		return fmt.Errorf("login %s: %w", acc.Username, err)
	}
	c.persist(acc)
	return nil
}

// login walks the onboarding task flow until it reports success.
func (c *Client) login(ctx context.Context, acc *Account, bc *stealth.BrowserClient) error {
	slog.Info("session: logging in", slog.String("user", acc.Username))

	guestToken, err := c.guestToken(bc)
	if err != nil {
		return fmt.Errorf("guest token: %w", err)
	}
	fr, err := c.flowRequest(bc, guestToken, "/1.1/onboarding/task.json?flow_name=login", []byte(loginFlowInit))
	if err != nil {
		return fmt.Errorf("init login flow: %w", err)
	}

	for round := 0; round < maxLoginRounds && len(fr.Subtasks) > 0; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		subtask := fr.Subtasks[0].SubtaskID
		slog.Debug("session: login subtask", slog.String("user", acc.Username), slog.String("subtask", subtask))

		var key string
		var input any
		switch subtask {
		case "LoginSuccessSubtask", "AccountDuplicationCheck":
			return c.finishLogin(acc, bc)
		case "DenyLoginSubtask":
			return fmt.Errorf("login denied (account may be locked or disabled)")
		case "LoginArkoseChallenge", "LoginArkoseCaptcha", "LoginEnterRecaptcha":
			return ErrCaptchaRequired

		case "LoginJsInstrumentationSubtask":
			key, input = "js_instrumentation", map[string]any{"response": `{"rf":{"a":"b"},"s":"s"}`, "link": "next_link"}
		case "LoginEnterUserIdentifierSSO":
			key, input = "settings_list", map[string]any{
				"setting_responses": []any{map[string]any{
					"key":           "user_identifier",
					"response_data": map[string]any{"text_data": map[string]any{"result": acc.Username}},
				}},
				"link": "next_link",
			}
		case "LoginEnterPassword":
			key, input = "enter_password", map[string]any{"password": acc.Password, "link": "next_link"}
		case "LoginEnterAlternateIdentifierSubtask", "LoginAcid":
			ident := acc.Email
			if ident == "" {
				if subtask == "LoginAcid" {
					return fmt.Errorf("login confirmation needs an email for %s", acc.Username)
				}
				ident = acc.Username
			}
			key, input = "enter_text", map[string]any{"text": ident, "link": "next_link"}
		case "LoginTwoFactorAuthChallenge":
			if acc.TOTPSecret == "" {
				return fmt.Errorf("2FA required but no TOTP secret for %s", acc.Username)
			}
			code, err := totp.GenerateCode(acc.TOTPSecret, time.Now())
			if err != nil {
				return fmt.Errorf("TOTP code: %w", err)
			}
			key, input = "enter_text", map[string]any{"text": code, "link": "next_link"}
		default:
			slog.Warn("session: unknown login subtask, skipping", slog.String("user", acc.Username), slog.String("subtask", subtask))
			key, input = "action_list", map[string]any{"link": "next_link"}
		}

		payload, err := flowPayload(fr.FlowToken, subtask, key, input)
		if err != nil {
			return err
		}
		if fr, err = c.flowRequest(bc, guestToken, "/1.1/onboarding/task.json", payload); err != nil {
			return fmt.Errorf("subtask %s: %w", subtask, err)
		}
	}
	// Some flows end by returning no further subtasks.
	return c.finishLogin(acc, bc)
}

func (c *Client) finishLogin(acc *Account, bc *stealth.BrowserClient) error {
	authToken := cookie(bc, "auth_token")
	if authToken == "" {
		return fmt.Errorf("login completed but no auth_token cookie")
	}
	ct0 := cookie(bc, "ct0")
	if ct0 == "" {
		ct0 = GenerateCT0()
	}
	acc.SetCredentials(authToken, ct0)
	slog.Info("session: login successful", slog.String("user", acc.Username))
	return nil
}

func cookie(bc *stealth.BrowserClient, name string) string {
	if v := bc.GetCookieValue(twitterAPIURL, name); v != "" {
		return v
	}
	return bc.GetCookieValue("https://twitter.com", name)
}

// guestToken fetches a guest token for the login flow.
func (c *Client) guestToken(bc *stealth.BrowserClient) (string, error) {
	headers := map[string]string{
		"authorization": "Bearer " + BearerToken,
		"content-type":  "application/json",
		"user-agent":    defaultUserAgent,
	}
	body, _, status, err := c.send(bc, "POST", twitterAPIURL+"/1.1/guest/activate.json", headers, nil)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", fmt.Errorf("HTTP %d", status)
	}
	var resp struct {
		GuestToken string `json:"guest_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.GuestToken == "" {
		return "", fmt.Errorf("empty guest token in response")
	}
	return resp.GuestToken, nil
}

type flowResponse struct {
	FlowToken string `json:"flow_token"`
	Subtasks  []struct {
		SubtaskID string `json:"subtask_id"`
	} `json:"subtasks"`
}

func (c *Client) flowRequest(bc *stealth.BrowserClient, guestToken, path string, payload []byte) (*flowResponse, error) {
	body, _, status, err := c.send(bc, "POST", twitterAPIURL+path, loginFlowHeaders(guestToken, ""), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", status, truncateBytes(body, 300))
	}
	return parseFlowResponse(body)
}

func parseFlowResponse(body []byte) (*flowResponse, error) {
	var fr flowResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, fmt.Errorf("parse flow response: %w", err)
	}
	if fr.FlowToken == "" {
		return nil, fmt.Errorf("empty flow_token in response: %s", truncateBytes(body, 200))
	}
	return &fr, nil
}

// flowPayload builds a task.json body answering one subtask.
func flowPayload(flowToken, subtaskID, key string, input any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"flow_token": flowToken,
		"subtask_inputs": []map[string]any{{
			"subtask_id": subtaskID,
			key:          input,
		}},
	})
}

// loginFlowInit starts flow_name=login.
const loginFlowInit = `{"input_flow_data":{"flow_context":{"debug_overrides":{},"start_location":{"location":"splash_screen"}}},"subtask_versions":{"action_list":2,"alert_dialog":1,"app_download_cta":1,"check_logged_in_account":1,"choice_selection":3,"contacts_live_sync_permission_prompt":0,"cta":7,"email_verification":2,"end_flow":1,"enter_date":1,"enter_email":2,"enter_password":5,"enter_phone":2,"enter_recaptcha":1,"enter_text":5,"enter_username":2,"generic_urt":3,"in_app_notification":1,"interest_picker":3,"js_instrumentation":1,"menu_dialog":1,"notifications_permission_prompt":2,"open_account":2,"open_home_timeline":1,"open_link":1,"phone_verification":4,"privacy_options":1,"security_key":3,"select_avatar":4,"select_banner":2,"settings_list":7,"show_code":1,"sign_up":2,"sign_up_review":4,"tweet_selection_urt":1,"update_users":1,"upload_media":1,"user_recommendations_list":4,"user_recommendations_urt":1,"wait_spinner":3,"web_modal":1}}`
