package kernel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/artpar/opkernel/core/opview"
	"github.com/artpar/opkernel/core/schema"
	"github.com/artpar/opkernel/core/storage"
)

// atomValidateInput validates and coerces the payload against the
// compiled input schema. Which fields were coerced and which were
// invalid is always recorded in ctx.Temp, success or failure.
func (k *Kernel) atomValidateInput(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		report, err := view.ValidateInput(c.Payload)
		c.Temp[TempCoerced] = report.Coerced
		c.Temp[TempInvalid] = report.Invalid
		if err != nil {
			return err
		}
		for name, value := range report.Clean {
			c.Data[name] = value
		}
		return nil
	}
}

// atomValidateItems validates each element of a bulk payload.
func (k *Kernel) atomValidateItems(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		raw, ok := c.Payload["items"].([]any)
		if !ok {
			return &opview.ValidationError{
				Fields:  []string{"items"},
				Reasons: map[string]string{"items": "must be an array"},
			}
		}

		var clean []map[string]any
		var invalid []string
		var coerced []string
		reasons := make(map[string]string)

		for i, item := range raw {
			payload, ok := item.(map[string]any)
			if !ok {
				key := fmt.Sprintf("items[%d]", i)
				invalid = append(invalid, key)
				reasons[key] = "must be an object"
				continue
			}
			report, err := view.ValidateInput(payload)
			for _, f := range report.Coerced {
				coerced = append(coerced, fmt.Sprintf("items[%d].%s", i, f))
			}
			if err != nil {
				var verr *opview.ValidationError
				if errors.As(err, &verr) {
					for _, f := range verr.Fields {
						key := fmt.Sprintf("items[%d].%s", i, f)
						invalid = append(invalid, key)
						reasons[key] = verr.Reasons[f]
					}
					continue
				}
				return err
			}
			clean = append(clean, report.Clean)
		}

		c.Temp[TempCoerced] = coerced
		c.Temp[TempInvalid] = invalid
		if len(invalid) > 0 {
			sort.Strings(invalid)
			return &opview.ValidationError{Fields: invalid, Reasons: reasons}
		}
		c.Temp["items"] = clean
		return nil
	}
}

// atomBeginTx opens the call's transaction and sets the open flag.
func (k *Kernel) atomBeginTx() HookFunc {
	return func(ctx context.Context, c *Context) error {
		if err := c.DB.Begin(ctx); err != nil {
			return err
		}
		c.Temp[TempTxOpen] = true
		return nil
	}
}

// atomEndTx commits or rolls back, but only if a matching START_TX
// actually opened a transaction. Clearing the flag first makes a
// defensive second invocation a no-op.
func (k *Kernel) atomEndTx() HookFunc {
	return func(ctx context.Context, c *Context) error {
		if !c.TxOpen() {
			return nil
		}
		c.Temp[TempTxOpen] = false

		if c.Failure != nil {
			return c.DB.Rollback()
		}
		return c.DB.Commit()
	}
}

// atomTransformStored applies input-to-storage transforms.
func (k *Kernel) atomTransformStored(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		for _, t := range view.ToStored {
			value, ok := c.Data[t.Field]
			if !ok || value == nil {
				continue
			}
			stored, err := t.Apply(value)
			if err != nil {
				return err
			}
			c.Data[t.Field] = stored
		}
		return nil
	}
}

// atomGeneratePaired produces the ephemeral value and its digest for
// every paired field, exactly once per create-type run. Both land in
// ctx.Temp; the ephemeral value is never logged.
func (k *Kernel) atomGeneratePaired(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		for _, pf := range view.Paired {
			raw, err := k.compiler.Generate()
			if err != nil {
				return fmt.Errorf("generate paired value for %q: %w", pf.Field, err)
			}
			digest, err := k.compiler.Hash(raw)
			if err != nil {
				return fmt.Errorf("digest paired value for %q: %w", pf.Field, err)
			}
			c.Temp[TempPairedPrefix+pf.Field] = raw
			c.Temp[TempPairedPrefix+pf.Field+":digest"] = digest
			c.Data[pf.Column] = digest
		}
		return nil
	}
}

// atomApplySet applies declared state-transition values.
func (k *Kernel) atomApplySet(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		for field, value := range view.Spec.Set {
			c.Data[field] = value
		}
		return nil
	}
}

// atomHandler returns the built-in handler for a canonical target.
func (k *Kernel) atomHandler(m schema.Model, view *opview.OpView) HookFunc {
	switch view.Spec.Target {
	case "create":
		return k.handleCreate(view)
	case "read":
		return k.handleRead(m)
	case "update", "replace":
		return k.handleUpdate(view)
	case "delete":
		return k.handleDelete()
	case "list":
		return k.handleList()
	case "clear":
		return k.handleClear()
	case "bulk_create":
		return k.handleBulkCreate(view)
	case "bulk_update", "bulk_replace":
		return k.handleBulkUpdate(view)
	case "bulk_delete":
		return k.handleBulkDelete()
	}
	return func(ctx context.Context, c *Context) error {
		return fmt.Errorf("no handler for target %q", view.Spec.Target)
	}
}

func (k *Kernel) handleCreate(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		id, err := k.store.Insert(ctx, c.DB, c.Model, c.Data)
		if err != nil {
			return err
		}
		c.Result.ID = id

		// The engine fills defaulted columns; re-read per the view's
		// refresh hints.
		if len(view.RefreshHints) > 0 {
			record, err := k.store.Get(ctx, c.DB, c.Model, "id", id)
			if err != nil {
				return err
			}
			c.Result.Data = record
			return nil
		}

		record := map[string]any{"id": id}
		for name, value := range c.Data {
			record[name] = value
		}
		c.Result.Data = record
		return nil
	}
}

func (k *Kernel) handleRead(m schema.Model) HookFunc {
	lookups := lookupColumns(m)
	return func(ctx context.Context, c *Context) error {
		value := c.Params["id"]
		if value == "" {
			return &opview.ValidationError{
				Fields:  []string{"id"},
				Reasons: map[string]string{"id": "lookup value is required"},
			}
		}

		for _, lookup := range lookups {
			record, err := k.store.Get(ctx, c.DB, c.Model, lookup, value)
			if err == nil {
				c.Result.Data = record
				c.Result.ID, _ = record["id"].(string)
				return nil
			}
			var nf *storage.NotFoundError
			if !errors.As(err, &nf) {
				return err
			}
		}
		return &storage.NotFoundError{Model: c.Model, Lookup: "id", Value: value}
	}
}

func (k *Kernel) handleUpdate(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		id := c.Params["id"]
		if id == "" {
			return &opview.ValidationError{
				Fields:  []string{"id"},
				Reasons: map[string]string{"id": "lookup value is required"},
			}
		}

		if err := k.store.Update(ctx, c.DB, c.Model, id, c.Data); err != nil {
			return err
		}
		record, err := k.store.Get(ctx, c.DB, c.Model, "id", id)
		if err != nil {
			return err
		}
		c.Result.ID = id
		c.Result.Data = record
		return nil
	}
}

func (k *Kernel) handleDelete() HookFunc {
	return func(ctx context.Context, c *Context) error {
		id := c.Params["id"]
		if id == "" {
			return &opview.ValidationError{
				Fields:  []string{"id"},
				Reasons: map[string]string{"id": "lookup value is required"},
			}
		}
		if err := k.store.Delete(ctx, c.DB, c.Model, id); err != nil {
			return err
		}
		c.Result.ID = id
		return nil
	}
}

func (k *Kernel) handleList() HookFunc {
	return func(ctx context.Context, c *Context) error {
		opts := listOptions(c)
		list, count, err := k.store.List(ctx, c.DB, c.Model, opts)
		if err != nil {
			return err
		}
		c.Result.List = list
		c.Result.Count = count
		return nil
	}
}

func (k *Kernel) handleClear() HookFunc {
	return func(ctx context.Context, c *Context) error {
		n, err := k.store.Clear(ctx, c.DB, c.Model)
		if err != nil {
			return err
		}
		c.Result.Count = n
		return nil
	}
}

func (k *Kernel) handleBulkCreate(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		items, _ := c.Temp["items"].([]map[string]any)
		rawValues := make(map[string][]any, len(view.Paired))

		for _, item := range items {
			for _, pf := range view.Paired {
				raw, err := k.compiler.Generate()
				if err != nil {
					return err
				}
				digest, err := k.compiler.Hash(raw)
				if err != nil {
					return err
				}
				item[pf.Column] = digest
				rawValues[pf.Field] = append(rawValues[pf.Field], raw)
			}

			id, err := k.store.Insert(ctx, c.DB, c.Model, item)
			if err != nil {
				return err
			}
			record, err := k.store.Get(ctx, c.DB, c.Model, "id", id)
			if err != nil {
				return err
			}
			c.Result.List = append(c.Result.List, record)
		}

		c.Result.Count = int64(len(c.Result.List))
		// One value per item, keyed per field, same as the single-create
		// path.
		for field, values := range rawValues {
			c.Temp[TempPairedPrefix+field] = values
		}
		return nil
	}
}

func (k *Kernel) handleBulkUpdate(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		items, _ := c.Temp["items"].([]map[string]any)
		raw, _ := c.Payload["items"].([]any)

		for i, item := range items {
			var id string
			if i < len(raw) {
				if obj, ok := raw[i].(map[string]any); ok {
					id, _ = obj["id"].(string)
				}
			}
			if id == "" {
				return &opview.ValidationError{
					Fields:  []string{fmt.Sprintf("items[%d].id", i)},
					Reasons: map[string]string{fmt.Sprintf("items[%d].id", i): "id is required"},
				}
			}
			if err := k.store.Update(ctx, c.DB, c.Model, id, item); err != nil {
				return err
			}
			record, err := k.store.Get(ctx, c.DB, c.Model, "id", id)
			if err != nil {
				return err
			}
			c.Result.List = append(c.Result.List, record)
		}

		c.Result.Count = int64(len(c.Result.List))
		return nil
	}
}

func (k *Kernel) handleBulkDelete() HookFunc {
	return func(ctx context.Context, c *Context) error {
		raw, ok := c.Payload["ids"].([]any)
		if !ok {
			return &opview.ValidationError{
				Fields:  []string{"ids"},
				Reasons: map[string]string{"ids": "must be an array of ids"},
			}
		}
		for _, v := range raw {
			id, _ := v.(string)
			if id == "" {
				continue
			}
			if err := k.store.Delete(ctx, c.DB, c.Model, id); err != nil {
				return err
			}
			c.Result.Count++
		}
		return nil
	}
}

// atomProduceVirtuals computes read-time fields on every record in the
// result.
func (k *Kernel) atomProduceVirtuals(view *opview.OpView) HookFunc {
	return func(ctx context.Context, c *Context) error {
		produce := func(record map[string]any) {
			for _, v := range view.Virtuals {
				record[v.Field] = v.Produce(record)
			}
		}
		if c.Result.Data != nil {
			produce(c.Result.Data)
		}
		for _, record := range c.Result.List {
			produce(record)
		}
		return nil
	}
}

// atomShapeResponse filters results to the exposed output schema and
// reveals generated paired values exactly once through result meta.
func (k *Kernel) atomShapeResponse(view *opview.OpView) HookFunc {
	exposed := make(map[string]bool, len(view.SchemaOut))
	for _, name := range view.SchemaOut {
		exposed[name] = true
	}

	return func(ctx context.Context, c *Context) error {
		if c.Result.Data != nil {
			c.Result.Data = filterExposed(c.Result.Data, exposed)
		}
		for i, record := range c.Result.List {
			c.Result.List[i] = filterExposed(record, exposed)
		}

		for _, pf := range view.Paired {
			if raw, ok := c.Temp[TempPairedPrefix+pf.Field]; ok {
				c.Result.Meta[pf.Field] = raw
			}
		}
		return nil
	}
}

// atomLogOutcome emits the per-call telemetry entry. Fire-and-forget;
// it never fails the pipeline and never logs ephemeral values.
func (k *Kernel) atomLogOutcome() HookFunc {
	return func(ctx context.Context, c *Context) error {
		c.Log.Debug().
			Str("id", c.Result.ID).
			Int64("count", c.Result.Count).
			Msg("operation completed")
		return nil
	}
}

func filterExposed(record map[string]any, exposed map[string]bool) map[string]any {
	out := make(map[string]any, len(record))
	for name, value := range record {
		if exposed[name] {
			out[name] = value
		}
	}
	return out
}

func lookupColumns(m schema.Model) []string {
	columns := []string{"id"}
	var names []string
	for name, f := range m.Fields {
		if f.Lookup && f.IsStored() && f.Type != schema.FieldTypeSecret {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append(columns, names...)
}

func listOptions(c *Context) storage.ListOptions {
	opts := storage.ListOptions{Limit: 100}

	if limit, ok := numberParam(c.Payload["limit"]); ok {
		opts.Limit = limit
	}
	if offset, ok := numberParam(c.Payload["offset"]); ok {
		opts.Offset = offset
	}
	if orderBy, ok := c.Payload["order_by"].(string); ok {
		opts.OrderBy = orderBy
	}
	if desc, ok := boolParam(c.Payload["order_desc"]); ok {
		opts.OrderDesc = desc
	}
	if filters, ok := c.Payload["filters"].(map[string]any); ok {
		opts.Filters = filters
	}
	return opts
}

func numberParam(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// boolParam accepts both native booleans and their string form, since
// query-string transports deliver every parameter as a string.
func boolParam(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	return false, false
}
