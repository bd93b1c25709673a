package mailer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/mailer"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, email *mailer.Email) (*mailer.Receipt, error) {
	args := m.Called(ctx, email)
	receipt, _ := args.Get(0).(*mailer.Receipt)
	return receipt, args.Error(1)
}

func TestMailer_Send(t *testing.T) {
	t.Parallel()

	t.Run("fills text fallback and sender", func(t *testing.T) {
		t.Parallel()

		sender := &mockSender{}
		sender.On("Send", mock.Anything, mock.MatchedBy(func(e *mailer.Email) bool {
			return e.Text == "Hi Ann & co" && e.From == "ops@example.com"
		})).Return(&mailer.Receipt{MessageID: "m-1"}, nil).Once()

		m := mailer.New(sender, mailer.WithFrom("ops@example.com"))
		receipt, err := m.Send(context.Background(), &mailer.Email{
			To:      "a@x.com",
			Subject: "hi",
			HTML:    "<p>Hi <b>Ann</b> &amp; co</p>",
		})
		require.NoError(t, err)
		assert.Equal(t, "m-1", receipt.MessageID)
		sender.AssertExpectations(t)
	})

	t.Run("keeps explicit text", func(t *testing.T) {
		t.Parallel()

		sender := &mockSender{}
		sender.On("Send", mock.Anything, mock.MatchedBy(func(e *mailer.Email) bool {
			return e.Text == "plain"
		})).Return(&mailer.Receipt{}, nil).Once()

		_, err := mailer.New(sender).Send(context.Background(), &mailer.Email{
			To: "a@x.com", Subject: "hi", HTML: "<p>x</p>", Text: "plain",
		})
		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("wraps transport errors", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("smtp down")
		sender := &mockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(nil, boom).Once()

		_, err := mailer.New(sender).Send(context.Background(), &mailer.Email{To: "a@x.com", Subject: "s", HTML: "h"})
		require.ErrorIs(t, err, mailer.ErrSendFailed)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, "smtp down", err.Error())
	})

	t.Run("validates before sending", func(t *testing.T) {
		t.Parallel()

		sender := &mockSender{}
		m := mailer.New(sender)

		tests := []struct {
			name  string
			email *mailer.Email
			want  error
		}{
			{name: "nil", email: nil, want: mailer.ErrNoRecipient},
			{name: "no recipient", email: &mailer.Email{Subject: "s", HTML: "h"}, want: mailer.ErrNoRecipient},
			{name: "no subject", email: &mailer.Email{To: "a@x.com", HTML: "h"}, want: mailer.ErrNoSubject},
			{name: "no html", email: &mailer.Email{To: "a@x.com", Subject: "s"}, want: mailer.ErrNoContent},
		}
		for _, tt := range tests {
			_, err := m.Send(context.Background(), tt.email)
			assert.ErrorIs(t, err, tt.want, tt.name)
		}
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	receipt, err := mailer.NewLogSender(nil).Send(context.Background(), &mailer.Email{To: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "simulated-id", receipt.MessageID)
	assert.Equal(t, "Simulated success", receipt.Response)
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		vars []mailer.Var
		want string
	}{
		{
			name: "name and email",
			in:   "Hi {{name}}, you are {{email}}",
			vars: []mailer.Var{{Key: "name", Value: "Ann"}, {Key: "email", Value: "a@x.com"}},
			want: "Hi Ann, you are a@x.com",
		},
		{
			name: "every occurrence",
			in:   "{{name}} {{name}}",
			vars: []mailer.Var{{Key: "name", Value: "Bo"}},
			want: "Bo Bo",
		},
		{
			name: "unknown placeholder kept",
			in:   "Hi {{name}} {{plan}}",
			vars: []mailer.Var{{Key: "name", Value: "Ann"}},
			want: "Hi Ann {{plan}}",
		},
		{
			name: "no escaping",
			in:   "<p>{{name}}</p>",
			vars: []mailer.Var{{Key: "name", Value: "<b>Ann</b>"}},
			want: "<p><b>Ann</b></p>",
		},
		{
			name: "sequential replacement",
			in:   "{{name}}",
			vars: []mailer.Var{{Key: "name", Value: "{{email}}"}, {Key: "email", Value: "a@x.com"}},
			want: "a@x.com",
		},
		{
			name: "no spaces variant left alone",
			in:   "{{ name }}",
			vars: []mailer.Var{{Key: "name", Value: "Ann"}},
			want: "{{ name }}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, mailer.Substitute(tt.in, tt.vars...))
		})
	}
}

func TestPlainTextAndSanitize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Welcome, Ann!We are excited", mailer.PlainText("<h1>Welcome, Ann!</h1><p>We are excited</p>"))
	assert.Empty(t, mailer.PlainText("<script>alert(1)</script>"))

	clean := mailer.SanitizeHTML(`<p onclick="x()">hi <a href="javascript:alert(1)">x</a></p><script>bad()</script>`)
	assert.NotContains(t, clean, "onclick")
	assert.NotContains(t, clean, "javascript:")
	assert.NotContains(t, clean, "<script>")
	assert.Contains(t, clean, "<p>hi")
}

func TestRecipient(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ann <a@x.com>", mailer.Recipient("Ann", "a@x.com"))
	assert.Equal(t, "a@x.com", mailer.Recipient("", "a@x.com"))
}
