package graph

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/tracing"
)

// StatementRunner is implemented by *Client.
type StatementRunner interface {
	RunInWrite(ctx context.Context, statements []Statement) error
}

const (
	upsertContactCypher = `
		MERGE (c:Contact {id: $id})
		SET c.email = $email,
			c.phone_number = $phone_number,
			c.link_precedence = $link_precedence,
			c.created_at = $created_at
	`
	// a contact has at most one LINKED_TO edge, pointing at its primary
	clearLinksCypher = `
		MATCH (c:Contact {id: $id})-[r:LINKED_TO]->()
		DELETE r
	`
	linkCypher = `
		MATCH (s:Contact {id: $id}), (p:Contact {id: $primary_id})
		MERGE (s)-[:LINKED_TO]->(p)
	`
	removeContactCypher = `
		MATCH (c:Contact {id: $id})
		DETACH DELETE c
	`
)

// Projector implements identity.ClusterProjector.
type Projector struct {
	runner StatementRunner
	logger ectologger.Logger
}

// NewProjector creates a new cluster projector.
func NewProjector(runner StatementRunner, logger ectologger.Logger) *Projector {
	return &Projector{
		runner: runner,
		logger: logger,
	}
}

// ProjectCluster upserts every member and rewrites its edge to the cluster's primary.
func (p *Projector) ProjectCluster(ctx context.Context, members []*models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectCluster")
	defer span.End()

	if len(members) == 0 {
		return nil
	}

	statements := ClusterStatements(members)
	if err := p.runner.RunInWrite(ctx, statements); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to project cluster")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id": members[0].PrimaryID(),
		"members":    len(members),
	}).Debug("Projected cluster")
	return nil
}

// RemoveContact deletes the contact node and its edges.
func (p *Projector) RemoveContact(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.RemoveContact")
	defer span.End()

	err := p.runner.RunInWrite(ctx, []Statement{{
		Cypher: removeContactCypher,
		Params: map[string]any{"id": id},
	}})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to remove contact from graph")
		return err
	}
	return nil
}

// ClusterStatements builds the writes that mirror one cluster.
func ClusterStatements(members []*models.Contact) []Statement {
	statements := make([]Statement, 0, len(members)*3)
	for _, m := range members {
		statements = append(statements, Statement{
			Cypher: upsertContactCypher,
			Params: map[string]any{
				"id":              m.ID,
				"email":           m.EmailValue(),
				"phone_number":    m.PhoneValue(),
				"link_precedence": string(m.LinkPrecedence),
				"created_at":      m.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		})
	}
	for _, m := range members {
		statements = append(statements, Statement{
			Cypher: clearLinksCypher,
			Params: map[string]any{"id": m.ID},
		})
		if m.IsPrimary() {
			continue
		}
		statements = append(statements, Statement{
			Cypher: linkCypher,
			Params: map[string]any{"id": m.ID, "primary_id": *m.LinkedID},
		})
	}
	return statements
}
