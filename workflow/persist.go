package workflow

import "time"

func (d *Driver) persist() error {
	d.wf.UpdatedAt = time.Now()
	rec := d.snapshot()
	name := "workflows/" + d.wf.ID.String()

	exists, err := d.cfg.Store.ReadRef(name, nil)
	if err != nil {
		return err
	}
	if exists {
		return d.cfg.Store.UpdateRef(name, rec)
	}
	return d.cfg.Store.CreateRef(name, rec)
}

func (d *Driver) snapshot() Record {
	rec := Record{
		ID:            d.wf.ID.String(),
		Status:        d.wf.Status.String(),
		Phase:         d.wf.Phase.String(),
		Prompt:        d.wf.Prompt,
		BaseCommit:    d.wf.BaseCommit,
		StagingCommit: d.wf.StagingCommit,
		CreatedAt:     d.wf.CreatedAt,
		UpdatedAt:     d.wf.UpdatedAt,
	}

	for _, t := range d.graph.Tasks() {
		tr := TaskRecord{
			ID:           t.ID.String(),
			Name:         t.Name,
			Description:  t.Description,
			Status:       t.Status.String(),
			ResultCommit: t.ResultCommit,
			CreatedAt:    t.CreatedAt,
			StartedAt:    t.StartedAt,
			EndedAt:      t.EndedAt,
		}
		if t.AgentID != nil {
			tr.AgentID = t.AgentID.String()
		}
		rec.Tasks = append(rec.Tasks, tr)
	}

	for _, e := range d.graph.Edges() {
		rec.Edges = append(rec.Edges, EdgeRecord{From: e.From.String(), To: e.To.String(), Kind: e.Kind.String()})
	}

	for _, id := range d.scheduler.FailedTaskIDs() {
		rec.FailedTaskIDs = append(rec.FailedTaskIDs, id.String())
	}

	for _, c := range d.wf.PendingConflicts {
		rec.PendingConflicts = append(rec.PendingConflicts, ConflictRecord{
			Path:   c.Path,
			Ours:   string(c.Ours),
			Theirs: string(c.Theirs),
			Base:   string(c.Base),
		})
	}

	return rec
}
