// Package tui is a terminal front end for the chat service.
package tui

import (
	"context"
	"errors"
	"strconv"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App holds the terminal UI state for one session.
type App struct {
	service   *app.ChatService
	sessionID string
	ctx       context.Context

	Application *tview.Application
	form        *tview.Form
	apiKey      *tview.InputField
	model       *tview.DropDown
	prompt      *tview.InputField
	temperature *tview.InputField
	maxTokens   *tview.InputField
	quizMode    *tview.Checkbox
	transcript  *tview.TextView
	status      *tview.TextView
	input       *tview.InputField

	view *view
}

// NewApp creates the UI for sessionID. Call Run to show it.
func NewApp(service *app.ChatService, sessionID string) *App {
	return &App{
		service:     service,
		sessionID:   sessionID,
		Application: tview.NewApplication(),
	}
}

// Run opens the session and blocks until the user quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.ctx = ctx
	snap, err := a.service.Open(ctx, a.sessionID)
	if err != nil {
		return err
	}
	events, cancel, err := a.service.Subscribe(ctx, a.sessionID)
	if err != nil {
		return err
	}
	defer cancel()

	a.view = newView(snap)
	a.setupUI()
	a.redraw()
	a.setStatus(domain.ErrMissingAPIKey.Error())

	stopped := make(chan struct{})
	defer close(stopped)

	pump := newEventPump(
		func(fn func()) { a.Application.QueueUpdateDraw(fn) },
		func(batch []domain.Event) {
			for _, ev := range batch {
				a.view.apply(ev)
			}
			a.redraw()
		},
	)
	go pump.run(events, stopped)
	go func() {
		select {
		case <-ctx.Done():
			a.Application.Stop()
		case <-stopped:
		}
	}()

	return a.Application.Run()
}

func (a *App) setupUI() {
	defaults := a.service.Defaults()

	a.apiKey = tview.NewInputField().
		SetLabel("OpenAI API key").
		SetFieldWidth(24).
		SetMaskCharacter('*').
		SetChangedFunc(a.updateAPIKey)

	a.model = tview.NewDropDown().
		SetLabel("Model").
		SetOptions(domain.SupportedModels, nil)
	for i, m := range domain.SupportedModels {
		if m == defaults.Model {
			a.model.SetCurrentOption(i)
		}
	}

	a.prompt = tview.NewInputField().
		SetLabel("System prompt").
		SetFieldWidth(24)
	a.temperature = tview.NewInputField().
		SetLabel("Temperature").
		SetFieldWidth(6).
		SetAcceptanceFunc(tview.InputFieldFloat).
		SetText(strconv.FormatFloat(defaults.Temperature, 'f', -1, 64))
	a.maxTokens = tview.NewInputField().
		SetLabel("Max tokens").
		SetFieldWidth(6).
		SetAcceptanceFunc(tview.InputFieldInteger).
		SetText(strconv.Itoa(defaults.MaxTokens))
	a.quizMode = tview.NewCheckbox().
		SetLabel("Multiplication quiz mode")

	a.form = tview.NewForm().
		AddFormItem(a.apiKey).
		AddFormItem(a.model).
		AddFormItem(a.prompt).
		AddFormItem(a.temperature).
		AddFormItem(a.maxTokens).
		AddButton("Apply", a.applyConfig).
		AddFormItem(a.quizMode).
		AddButton("Start quiz", a.startQuiz).
		AddButton("End quiz", a.endQuiz)
	a.form.SetBorder(true).
		SetTitle(" Settings ").
		SetTitleAlign(tview.AlignLeft)

	a.transcript = tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetWrap(true)
	a.transcript.SetBorder(true).
		SetTitle(" Chat ").
		SetTitleAlign(tview.AlignCenter)

	a.status = tview.NewTextView().SetDynamicColors(true)

	a.input = tview.NewInputField().SetLabel(labelChat + ": ")
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.input.GetText()
		if text == "" {
			return
		}
		a.input.SetText("")
		go a.submit(text)
	})

	chat := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.transcript, 0, 1, false).
		AddItem(a.status, 1, 0, false).
		AddItem(a.input, 1, 0, true)

	root := tview.NewFlex().
		AddItem(a.form, 44, 0, false).
		AddItem(chat, 0, 1, true)

	a.Application.SetRoot(root, true).SetFocus(a.input)
	a.Application.SetInputCapture(a.handleInput)
}

// handleInput toggles focus between the settings form and the input with Tab.
func (a *App) handleInput(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC:
		a.Application.Stop()
		return nil
	case tcell.KeyEscape:
		if a.input.HasFocus() {
			a.Application.SetFocus(a.form)
		} else {
			a.Application.SetFocus(a.input)
		}
		return nil
	}
	return event
}

func (a *App) redraw() {
	a.transcript.SetText(a.view.render())
	a.transcript.ScrollToEnd()
	a.input.SetLabel(InputLabel(a.view.quiz) + ": ")
	if line := a.view.scoreLine(); line != "" {
		a.setStatus(line)
	}
}

func (a *App) setStatus(text string) {
	a.status.SetText("[gray]" + tview.Escape(text) + "[-]")
}

func (a *App) updateAPIKey(text string) {
	if err := a.service.SetAPIKey(a.ctx, a.sessionID, text); err != nil {
		a.setStatus(err.Error())
		return
	}
	if ok, _ := a.service.HasAPIKey(a.ctx, a.sessionID); !ok {
		a.setStatus(domain.ErrMissingAPIKey.Error())
		return
	}
	a.setStatus("API key set")
}

func (a *App) applyConfig() {
	_, model := a.model.GetCurrentOption()
	temperature, err := strconv.ParseFloat(a.temperature.GetText(), 64)
	if err != nil {
		a.setStatus("temperature must be a number")
		return
	}
	maxTokens, err := strconv.Atoi(a.maxTokens.GetText())
	if err != nil {
		a.setStatus("max tokens must be an integer")
		return
	}
	cfg := domain.ModelConfig{
		Model:        model,
		SystemPrompt: a.prompt.GetText(),
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	}
	if err := a.service.Configure(a.ctx, a.sessionID, cfg); err != nil {
		a.setStatus(err.Error())
		return
	}
	a.setStatus("settings applied: " + model)
}

func (a *App) startQuiz() {
	if !a.quizMode.IsChecked() {
		a.setStatus("enable multiplication quiz mode first")
		return
	}
	go a.run(func() error {
		_, err := a.service.StartQuiz(a.ctx, a.sessionID)
		return err
	})
}

func (a *App) endQuiz() {
	if !a.quizMode.IsChecked() {
		return
	}
	go a.run(func() error {
		_, err := a.service.EndQuiz(a.ctx, a.sessionID)
		return err
	})
}

// submit runs off the UI goroutine; replies arrive through the subscription.
func (a *App) submit(text string) {
	a.run(func() error {
		_, err := a.service.Submit(a.ctx, a.sessionID, text)
		return err
	})
}

func (a *App) run(fn func() error) {
	err := fn()
	if err == nil {
		return
	}
	a.Application.QueueUpdateDraw(func() {
		if !errors.Is(err, domain.ErrMissingAPIKey) {
			a.view.dropPending()
			a.redraw()
		}
		a.setStatus(err.Error())
	})
}
