package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"newsqueue/internal/app/news"
	"newsqueue/internal/pkg/logger"
	"newsqueue/internal/pkg/queue"
)

const menu = `What operation would you like to perform?
  1 - Send message
  2 - Peek at the next message
  3 - Receive message
  X - Exit program
`

// Console is the interactive menu loop.
type Console struct {
	Client *news.Client
	In     Input
	Out    io.Writer
}

// New creates a new Console.
func New(client *news.Client, in Input, out io.Writer) *Console {
	return &Console{Client: client, In: in, Out: out}
}

// Run shows the menu and dispatches selections until X, end of input, or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(c.Out, menu)
		key, err := await(ctx, c.In.ReadKey)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read selection: %w", err)
		}
		fmt.Fprintln(c.Out)
		fmt.Fprintln(c.Out)

		switch key {
		case '1':
			err = c.sendMessage(ctx)
		case '2':
			err = c.peekMessage(ctx)
		case '3':
			err = c.receiveMessage(ctx)
		case 'X', 'x':
			return nil
		default:
			fmt.Fprintln(c.Out, "invalid choice")
			continue
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, queue.ErrEmptyQueue):
			fmt.Fprintln(c.Out, "There are no messages in the queue")
		default:
			logger.Error("operation %c failed: %s", key, err)
			fmt.Fprintf(c.Out, "Error: %v\n", err)
		}
		fmt.Fprintln(c.Out)
	}
}

func (c *Console) sendMessage(ctx context.Context) error {
	fmt.Fprintln(c.Out, "Enter a headline: ")
	headline, err := await(ctx, c.In.ReadLine)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.Out, "Enter a location: ")
	location, err := await(ctx, c.In.ReadLine)
	if err != nil {
		return err
	}

	receipt, err := c.Client.Send(ctx, news.Article{Headline: headline, Location: location})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.Out, "Message sent. Message Id=%s Expiration time=%s\n",
		receipt.MessageID, receipt.ExpiresOn.Format(time.RFC3339))
	return nil
}

func (c *Console) peekMessage(ctx context.Context) error {
	msg, err := c.Client.Peek(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.Out, "Message id: %s\n", msg.MessageID)
	fmt.Fprintf(c.Out, "Inserted on: %s\n", msg.InsertedOn.Format(time.RFC3339))
	if msg.Err != nil {
		fmt.Fprintf(c.Out, "Message (raw) : %s\n", msg.Body)
	} else {
		c.printArticle(msg.Article)
	}
	fmt.Fprintln(c.Out, "We are only peeking at the message, so another consumer could dequeue this message")
	return nil
}

func (c *Console) receiveMessage(ctx context.Context) error {
	err := c.Client.ReceiveAndAck(ctx, func(_ context.Context, msg news.ReceivedArticle) error {
		fmt.Fprintf(c.Out, "Message id: %s\n", msg.MessageID)
		fmt.Fprintf(c.Out, "Inserted on: %s\n", msg.InsertedOn.Format(time.RFC3339))
		fmt.Fprintf(c.Out, "Message (raw) : %s\n", msg.Body)
		c.printArticle(msg.Article)
		fmt.Fprintln(c.Out, "The processing for this message is just printing it out, so now it will be deleted")
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(c.Out, "Message deleted")
	return nil
}

// await runs a blocking read and gives up with io.EOF once ctx is done, so a signal ends the
// session without waiting for the next line of input. The abandoned read is left to the exiting
// process.
func await[T any](ctx context.Context, read func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := read()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, io.EOF
	case r := <-done:
		return r.v, r.err
	}
}

func (c *Console) printArticle(a news.Article) {
	fmt.Fprintln(c.Out, "News Article")
	fmt.Fprintf(c.Out, "- Headline: %s\n", a.Headline)
	fmt.Fprintf(c.Out, "- Location: %s\n", a.Location)
}
