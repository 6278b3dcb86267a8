package actions

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Executor dispatches plan actions onto handler operations. The table is
// open: registering a new action type is adding one entry, the planner schema
// only grows a type tag.
type Executor struct {
	handler *Handler
	logger  *zap.Logger
	table   map[string]func(context.Context, *PlanAction) Result
}

// NewExecutor builds the dispatch table over a handler.
func NewExecutor(handler *Handler, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{handler: handler, logger: logger}
	e.table = map[string]func(context.Context, *PlanAction) Result{
		TypeTap:            e.tap,
		TypeHover:          e.hover,
		TypeInput:          e.input,
		TypeClear:          e.clear,
		TypeSleep:          e.sleepAction,
		TypeScroll:         e.scroll,
		TypeKeyboardPress:  e.keyboardPress,
		TypeUpload:         e.upload,
		TypeSelectDropdown: e.selectDropdown,
		TypeDrag:           e.drag,
		TypeGetNewPage:     e.getNewPage,
		TypeCheck:          e.check,
		TypeFalsy:          e.falsy,
	}
	return e
}

// Register adds or replaces a dispatch entry.
func (e *Executor) Register(actionType string, fn func(context.Context, *PlanAction) Result) {
	e.table[actionType] = fn
}

// Execute runs one plan action. Unknown types come back as a plain failure,
// never a panic, so a creative planner cannot crash a run.
func (e *Executor) Execute(ctx context.Context, action *PlanAction) Result {
	fn, found := e.table[action.Type]
	if !found {
		e.logger.Warn("unknown action type", zap.String("type", action.Type))
		return fail("unknown action type %q", action.Type)
	}
	res := fn(ctx, action)
	e.logger.Debug("action executed",
		zap.String("type", action.Type),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message))
	return res
}

func requireLocate(a *PlanAction) (string, bool) {
	if a.Locate == nil || a.Locate.ID == "" {
		return "", false
	}
	return a.Locate.ID, true
}

func (e *Executor) tap(ctx context.Context, a *PlanAction) Result {
	id, found := requireLocate(a)
	if !found {
		return fail("Tap requires locate.id")
	}
	return e.handler.Click(ctx, id)
}

func (e *Executor) hover(ctx context.Context, a *PlanAction) Result {
	id, found := requireLocate(a)
	if !found {
		return fail("Hover requires locate.id")
	}
	return e.handler.Hover(ctx, id)
}

func (e *Executor) input(ctx context.Context, a *PlanAction) Result {
	id, found := requireLocate(a)
	if !found {
		return fail("Input requires locate.id")
	}
	value := a.ParamString("value")
	if value == "" {
		return fail("Input requires param.value")
	}
	return e.handler.Type(ctx, id, value, a.ParamBool("clear_before_type"))
}

func (e *Executor) clear(ctx context.Context, a *PlanAction) Result {
	id, found := requireLocate(a)
	if !found {
		return fail("Clear requires locate.id")
	}
	return e.handler.Clear(ctx, id)
}

func (e *Executor) sleepAction(ctx context.Context, a *PlanAction) Result {
	ms, found := a.ParamFloat("timeMs")
	if !found || ms <= 0 {
		ms = 1000
	}
	if ms > 30000 {
		ms = 30000
	}
	sleep(ctx, time.Duration(ms)*time.Millisecond)
	return ok("slept %.0f ms", ms)
}

func (e *Executor) scroll(ctx context.Context, a *PlanAction) Result {
	direction := a.ParamString("direction")
	scrollType := a.ParamString("scrollType")
	if direction == "" || scrollType == "" {
		return fail("Scroll requires param.direction and param.scrollType")
	}
	distance, _ := a.ParamFloat("distance")
	return e.handler.Scroll(ctx, direction, scrollType, distance)
}

func (e *Executor) keyboardPress(ctx context.Context, a *PlanAction) Result {
	key := a.ParamString("value")
	if key == "" {
		key = a.ParamString("key")
	}
	if key == "" {
		return fail("KeyboardPress requires param.value")
	}
	return e.handler.KeyboardPress(ctx, key)
}

func (e *Executor) upload(ctx context.Context, a *PlanAction) Result {
	paths := a.ParamStrings("file_path")
	if len(paths) == 0 {
		paths = a.ParamStrings("filePath")
	}
	if len(paths) == 0 {
		return fail("Upload requires param.file_path")
	}
	return e.handler.UploadFile(ctx, paths)
}

func (e *Executor) selectDropdown(ctx context.Context, a *PlanAction) Result {
	id, found := requireLocate(a)
	if !found {
		return fail("SelectDropdown requires locate.id")
	}
	optionID := a.ParamString("option_id")
	path := a.ParamStrings("selection_path")

	switch {
	case optionID != "" && len(path) <= 1:
		res := e.handler.SelectDropdownOption(ctx, id, "", optionID)
		return Result{Success: res.Success, Message: res.Message}
	case len(path) > 1:
		for level, text := range path {
			var res DropdownResult
			if level == 0 {
				res = e.handler.SelectDropdownOption(ctx, id, text, "")
			} else {
				res = e.handler.SelectCascadeLevel(ctx, text, level+1)
			}
			if !res.Success {
				return fail("cascade level %d (%q): %s", level+1, text, res.Message)
			}
			sleep(ctx, 500*time.Millisecond)
		}
		return ok("selected cascade path")
	default:
		text := a.ParamString("option_text")
		if text == "" && len(path) == 1 {
			text = path[0]
		}
		if text == "" {
			return fail("SelectDropdown requires param.option_text or selection_path")
		}
		res := e.handler.SelectDropdownOption(ctx, id, text, "")
		return Result{Success: res.Success, Message: res.Message}
	}
}

func (e *Executor) drag(ctx context.Context, a *PlanAction) Result {
	fromX, okFX := a.ParamFloat("sourceX")
	fromY, okFY := a.ParamFloat("sourceY")
	toX, okTX := a.ParamFloat("targetX")
	toY, okTY := a.ParamFloat("targetY")
	if !okFX || !okFY || !okTX || !okTY {
		return fail("Drag requires sourceX/sourceY/targetX/targetY")
	}
	return e.handler.Drag(ctx, fromX, fromY, toX, toY)
}

func (e *Executor) getNewPage(ctx context.Context, _ *PlanAction) Result {
	return e.handler.GetNewPage(ctx)
}

// check is the planner asserting the page state looks right; the verifier
// judges it later from the screenshots, so executing it is a no-op success.
func (e *Executor) check(_ context.Context, a *PlanAction) Result {
	return ok("check noted: %s", a.Thought)
}

// falsy is the planner reporting a precondition does not hold.
func (e *Executor) falsy(_ context.Context, a *PlanAction) Result {
	reason := a.ParamString("reason")
	if reason == "" {
		reason = a.Thought
	}
	return fail("condition not met: %s", reason)
}
