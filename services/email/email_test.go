package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core"
	testutil "github.com/trezcool/learninghub/tests"
)

var testConf = &core.Config{AppName: "LearningHub", FrontendBaseURL: "http://localhost:5173", FromEmail: "noreply@test.cd"}

func TestConsoleService_SendMessages(t *testing.T) {
	core.ParseEmailTemplates(testutil.NopLogger{})
	svc := NewConsoleServiceMock(testConf, testutil.NopLogger{})

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Address: "jane@test.cd"}},
			Subject:      "Confirm your email",
			TemplateName: "confirm_email",
			TemplateData: map[string]interface{}{"Code": "123456", "ExpiresIn": "24h"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Your confirmation code is: 123456")
	assert.Contains(t, sent[0].TextContent, "The LearningHub team")
	assert.Contains(t, sent[0].HTMLContent, "123456")
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConf, testutil.NopLogger{})
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@test.cd"}},
		Bcc:         []mail.Address{{Address: "audit@test.cd"}},
		Subject:     "Hello",
		TextContent: "hi",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[LearningHub] Hello", m.Personalizations[0].Subject)
	assert.Equal(t, "jane@test.cd", m.Personalizations[0].To[0].Address)
	assert.Len(t, m.Personalizations[0].BCC, 1)
	require.Len(t, m.Content, 1, "no html part without html content")
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "noreply@test.cd", m.From.Address)
	assert.Equal(t, []string{"learninghub", "plain"}, m.Categories)
	assert.Equal(t, "plain", m.Personalizations[0].CustomArgs["template"])
	assert.Nil(t, m.TrackingSettings)
	assert.Nil(t, m.MailSettings)
}

func TestSendgridService_prepare_templated(t *testing.T) {
	conf := *testConf
	conf.AppName = "Learning Hub"
	conf.TestMode = true
	svc := NewSendgridService(&conf, testutil.NopLogger{})

	m := svc.prepare(core.EmailMessage{
		To:           []mail.Address{{Address: "jane@test.cd"}},
		Subject:      "[Learning Hub] Reset your password",
		TemplateName: "reset_password",
		TextContent:  "code: 123456",
		HTMLContent:  "<p>code: 123456</p>",
	})

	assert.Equal(t, "[Learning Hub] Reset your password", m.Personalizations[0].Subject, "prefix not doubled")
	assert.Equal(t, []string{"learning-hub", "reset_password"}, m.Categories)
	assert.Equal(t, "reset_password", m.Personalizations[0].CustomArgs["template"])
	require.Len(t, m.Content, 2)
	require.NotNil(t, m.TrackingSettings)
	require.NotNil(t, m.TrackingSettings.ClickTracking)
	require.NotNil(t, m.TrackingSettings.ClickTracking.Enable)
	assert.False(t, *m.TrackingSettings.ClickTracking.Enable)
	require.NotNil(t, m.MailSettings)
	require.NotNil(t, m.MailSettings.SandboxMode)
	require.NotNil(t, m.MailSettings.SandboxMode.Enable)
	assert.True(t, *m.MailSettings.SandboxMode.Enable)
}
