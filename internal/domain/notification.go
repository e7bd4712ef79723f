package domain

import "context"

type Mail struct {
	To      string
	Subject string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}
