package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 💬 交互式会话
// =============================================================================

const chatHelp = `Commands:
  /new               start a new topic
  /threads           list saved threads
  /switch <id>       switch to a saved thread
  /delete <id>       delete a saved thread
  /select [ids...]   restrict rounds to the given participants (no ids: everyone)
  /continue          let the participants answer the last reply
  /summary           ask the moderator for a summary
  /topic             regenerate the topic label
  /context <id>      show the prompt a participant would receive
  /who               list personalities
  /quit              save and exit
Anything else is sent to the selected participants. Address someone by name
("Nicole, what do you think?") to hear from them alone.`

// printer 把提交的消息写到终端。回调可能来自多个 goroutine。
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) listener() conversation.Listener {
	return conversation.ListenerFuncs{
		Commit: func(_ *conversation.Session, msg types.Message) {
			switch {
			case msg.IsDivider:
				p.printf("---------- %s\n", msg.Body)
			case msg.IsAgent():
				p.printf("%s: %s\n", msg.Sender, msg.Body)
			}
		},
	}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// chatLoop 读取输入行并驱动一个会话，直到 /quit、输入结束或 ctx 取消
type chatLoop struct {
	app  *app
	sess *conversation.Session
	out  *printer
}

func (c *chatLoop) run(ctx context.Context, in io.Reader) error {
	defer func() {
		if err := c.app.orch.Close(context.WithoutCancel(ctx), c.sess); err != nil {
			c.out.printf("error: %v\n", err)
		}
	}()

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// handle 处理一行输入，返回 true 表示退出
func (c *chatLoop) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	name, args, isCommand := parseCommand(line)
	if !isCommand {
		c.report(c.app.orch.Submit(ctx, c.sess, line, nil))
		return false
	}

	var err error
	switch name {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		c.out.printf("%s\n", chatHelp)
	case "new":
		var thread *types.Thread
		if thread, err = c.app.orch.NewTopic(ctx, c.sess); err == nil {
			c.out.printf("New topic started (%s).\n", thread.ID)
		}
	case "threads":
		err = c.listThreads(ctx)
	case "switch":
		if len(args) != 1 {
			c.out.printf("usage: /switch <id>\n")
			break
		}
		var thread *types.Thread
		if thread, err = c.app.orch.SwitchThread(ctx, c.sess, args[0]); err == nil {
			c.out.printf("Switched to %q (%d messages).\n", thread.Topic, thread.Len())
		}
	case "delete":
		if len(args) != 1 {
			c.out.printf("usage: /delete <id>\n")
			break
		}
		if err = c.app.orch.DeleteThread(ctx, args[0]); err == nil {
			c.out.printf("Deleted %s.\n", args[0])
		}
	case "select":
		if len(args) == 0 {
			c.sess.Select(c.app.mainIDs()...)
			c.out.printf("Everyone takes part.\n")
		} else {
			c.sess.Select(args...)
			c.out.printf("Selected: %s\n", strings.Join(args, ", "))
		}
	case "continue":
		c.report(c.app.orch.ContinueRound(ctx, c.sess))
	case "summary":
		var summary string
		if summary, err = c.app.orch.Summarize(ctx, c.sess); err == nil {
			c.out.printf("Summary: %s\n", summary)
		}
	case "topic":
		var topic string
		if topic, err = c.app.orch.GenerateTopic(ctx, c.sess); err == nil {
			c.out.printf("Topic: %s\n", topic)
		}
	case "context":
		if len(args) != 1 {
			c.out.printf("usage: /context <participant-id>\n")
			break
		}
		var prompt *conversation.Prompt
		if prompt, err = c.app.orch.GetContext(ctx, c.sess, args[0]); err == nil {
			c.out.printf("%s\n\n%s\n(%d tokens)\n", prompt.System, prompt.Text, prompt.Tokens)
		}
	case "who":
		c.out.mu.Lock()
		printPersonalities(c.out.out, c.app)
		c.out.mu.Unlock()
	default:
		c.out.printf("unknown command /%s, try /help\n", name)
	}
	if err != nil {
		c.out.printf("error: %v\n", err)
	}
	return false
}

// report 在一轮结束后输出错误或追问提示
func (c *chatLoop) report(_ []types.Message, err error) {
	if err != nil {
		c.out.printf("error: %v\n", err)
		return
	}
	id, ok := c.sess.FollowUp()
	if !ok {
		return
	}
	name := id
	if p, found := c.app.personalities.Snapshot().Get(id); found {
		name = p.Name
	}
	c.out.printf("(%s was addressed, /continue to hear the answer)\n", name)
}

func (c *chatLoop) listThreads(ctx context.Context) error {
	infos, err := c.app.orch.ListThreads(ctx)
	if err != nil {
		return err
	}
	c.out.mu.Lock()
	defer c.out.mu.Unlock()
	printThreads(c.out.out, infos)
	return nil
}

// parseCommand 拆分 "/name arg..." 形式的输入
func parseCommand(line string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func printThreads(w io.Writer, infos []types.ThreadInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No saved threads.")
		return
	}
	for _, info := range infos {
		topic := info.Topic
		if topic == "" {
			topic = "(no topic)"
		}
		fmt.Fprintf(w, "%s  %s  %s (%d messages)\n",
			info.ID, info.Date.Local().Format("2006-01-02 15:04"), topic, info.MessageCount)
	}
}

func printPersonalities(w io.Writer, a *app) {
	for _, p := range a.personalities.Snapshot().All() {
		fmt.Fprintf(w, "%-18s %-12s %-10s %s\n", p.ID, p.Name, p.Role, p.ProviderID)
	}
}
