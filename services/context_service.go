package services

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"research-board-platform/internal/logger"
	"research-board-platform/models"
)

const summariesPrompt = "Summarize the key points in 5 bullets."

// AssembledContext is what chat sends to the model: ordered context
// pieces plus the distinct items that contributed them. Shortcut marks
// the single-item path, whose response echo is capped at 10 pieces.
type AssembledContext struct {
	Contexts []models.ContextPiece
	ItemIDs  []string
	Shortcut bool
}

// ContextService builds the model context for a chat turn: group-scoped
// blocks when the query names groups, plain retrieval otherwise, with
// stored-chunk and summary fallbacks.
type ContextService struct {
	groups    *mongo.Collection
	chunks    *mongo.Collection
	retrieval *RetrievalService
	answers   *AnswerService
}

func NewContextService(db *mongo.Database, retrieval *RetrievalService, answers *AnswerService) *ContextService {
	return &ContextService{
		groups:    db.Collection("groups"),
		chunks:    db.Collection("chunks"),
		retrieval: retrieval,
		answers:   answers,
	}
}

// AssembleContext builds the context for one query over a board.
// allowedItemIDs, when non-empty, restricts sources to those items; a
// single allowed item short-circuits retrieval entirely.
func (cs *ContextService) AssembleContext(ctx context.Context, boardID, query string, topK int, allowedItemIDs []string) (*AssembledContext, error) {
	if len(allowedItemIDs) == 1 {
		return cs.singleItemContext(ctx, boardID, allowedItemIDs[0])
	}

	groups := cs.loadGroups(ctx, boardID)

	// Query names one or more groups: answer per group.
	mentioned := mentionedGroups(groups, query)
	var pieces []models.ContextPiece
	var itemIDs []string
	if len(mentioned) > 0 {
		grouped, groupedItems, err := cs.groupContexts(ctx, boardID, query, topK, mentioned)
		if err != nil {
			logger.Warn("Group-scoped assembly failed, falling back to plain retrieval",
				"board_id", boardID, "error", err)
		} else {
			pieces = grouped
			itemIDs = groupedItems
		}
	}

	if len(pieces) == 0 {
		retrieved, err := cs.retrieval.Retrieve(ctx, boardID, query, topK, allowedItemIDs)
		if err != nil {
			return nil, err
		}
		for _, r := range retrieved {
			pieces = append(pieces, models.ContextPiece{
				Text:      r.Text,
				ItemID:    r.ItemID,
				StartTime: r.StartTime,
				EndTime:   r.EndTime,
				Score:     r.Score,
			})
			itemIDs = appendDistinct(itemIDs, r.ItemID)
		}
	}

	// Nothing retrieved but the caller named items: summarize each one
	// so the model still has something grounded to work with.
	if len(pieces) == 0 && len(allowedItemIDs) > 0 {
		summaries, summaryItems, err := cs.itemSummaries(ctx, allowedItemIDs)
		if err != nil {
			return nil, err
		}
		pieces = summaries
		itemIDs = summaryItems
	}

	// Group descriptions always ride along; they answer "what is group X"
	// style questions even when no transcript matched.
	for _, g := range groups {
		if strings.TrimSpace(g.Template) != "" {
			pieces = append(pieces, descriptionPiece(g))
		}
	}

	return &AssembledContext{Contexts: pieces, ItemIDs: itemIDs}, nil
}

// singleItemContext returns the item's stored chunks in ordinal order,
// prefixed with the descriptions of the groups it belongs to.
func (cs *ContextService) singleItemContext(ctx context.Context, boardID, itemID string) (*AssembledContext, error) {
	itemOID, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return nil, fmt.Errorf("invalid item id: %w", err)
	}

	chunks, err := cs.listChunksByItem(ctx, itemOID, 0)
	if err != nil {
		return nil, err
	}

	var pieces []models.ContextPiece
	for _, g := range cs.loadGroups(ctx, boardID) {
		if strings.TrimSpace(g.Template) == "" || !containsObjectID(g.ItemIDs, itemOID) {
			continue
		}
		pieces = append(pieces, descriptionPiece(g))
	}
	for _, c := range chunks {
		pieces = append(pieces, models.ContextPiece{
			Text:      c.Text,
			ItemID:    c.ItemID.Hex(),
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
		})
	}

	return &AssembledContext{
		Contexts: pieces,
		ItemIDs:  []string{itemID},
		Shortcut: true,
	}, nil
}

// groupContexts builds one aggregated block per mentioned group.
func (cs *ContextService) groupContexts(ctx context.Context, boardID, query string, topK int, mentioned []models.Group) ([]models.ContextPiece, []string, error) {
	kEach := topK / len(mentioned)
	if kEach < 4 {
		kEach = 4
	}

	var pieces []models.ContextPiece
	var itemIDs []string
	for _, g := range mentioned {
		var texts []string
		if strings.TrimSpace(g.Template) != "" {
			texts = append(texts, descriptionLine(g))
		}

		memberIDs := hexIDs(g.ItemIDs)
		var picked []models.RetrievedChunk
		if len(memberIDs) > 0 {
			var err error
			picked, err = cs.retrieval.Retrieve(ctx, boardID, query, kEach, memberIDs)
			if err != nil {
				return nil, nil, err
			}
		}

		if len(picked) == 0 && len(memberIDs) > 0 {
			// No vector hits for this group: fall back to the leading
			// stored chunks of each member.
			for _, oid := range g.ItemIDs {
				chs, err := cs.listChunksByItem(ctx, oid, 8)
				if err != nil {
					return nil, nil, err
				}
				if len(chs) > 0 {
					texts = append(texts, joinChunkTexts(chs, "\n"))
					itemIDs = appendDistinct(itemIDs, oid.Hex())
				}
			}
		} else {
			for _, p := range picked {
				texts = append(texts, p.Text)
				itemIDs = appendDistinct(itemIDs, p.ItemID)
			}
		}

		// A small base sample from the leading members keeps raw source
		// text in front of the model alongside the retrieved excerpts.
		base := g.ItemIDs
		if len(base) > 3 {
			base = base[:3]
		}
		for _, oid := range base {
			chs, err := cs.listChunksByItem(ctx, oid, 2)
			if err != nil {
				return nil, nil, err
			}
			if len(chs) > 0 {
				texts = append(texts, joinChunkTexts(chs, "\n"))
				itemIDs = appendDistinct(itemIDs, oid.Hex())
			}
		}

		if len(texts) > 0 {
			pieces = append(pieces, groupBlock(g.Name, texts))
		}
	}
	return pieces, itemIDs, nil
}

// itemSummaries asks the model for a bullet summary of each item's
// leading chunks.
func (cs *ContextService) itemSummaries(ctx context.Context, itemIDs []string) ([]models.ContextPiece, []string, error) {
	var pieces []models.ContextPiece
	var used []string
	for _, id := range itemIDs {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid item id: %w", err)
		}
		chs, err := cs.listChunksByItem(ctx, oid, 20)
		if err != nil {
			return nil, nil, err
		}
		if len(chs) == 0 {
			continue
		}

		ans, err := cs.answers.Answer(ctx, summariesPrompt, []models.ContextPiece{
			{Text: joinChunkTexts(chs, "\n\n")},
		})
		if err != nil {
			return nil, nil, err
		}
		pieces = append(pieces, models.ContextPiece{Text: ans.Text, ItemID: id})
		used = append(used, id)
	}
	return pieces, used, nil
}

func (cs *ContextService) loadGroups(ctx context.Context, boardID string) []models.Group {
	boardOID, err := primitive.ObjectIDFromHex(boardID)
	if err != nil {
		return nil
	}
	cursor, err := cs.groups.Find(ctx, bson.M{"board_id": boardOID},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		logger.Warn("Failed to load groups", "board_id", boardID, "error", err)
		return nil
	}
	defer cursor.Close(ctx)

	var groups []models.Group
	if err := cursor.All(ctx, &groups); err != nil {
		logger.Warn("Failed to decode groups", "board_id", boardID, "error", err)
		return nil
	}
	return groups
}

func (cs *ContextService) listChunksByItem(ctx context.Context, itemID primitive.ObjectID, limit int) ([]models.ContentChunk, error) {
	opts := options.Find().SetSort(bson.M{"order": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := cs.chunks.Find(ctx, bson.M{"item_id": itemID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var chunks []models.ContentChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// canonicalName lowercases and strips spaces so "Study Group" matches
// "studygroup" in a query.
func canonicalName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}

// mentionedGroups returns the groups whose canonical name occurs in the
// canonical query, preserving board order.
func mentionedGroups(groups []models.Group, query string) []models.Group {
	qcanon := canonicalName(query)
	var mentioned []models.Group
	for _, g := range groups {
		canon := canonicalName(g.Name)
		if canon != "" && strings.Contains(qcanon, canon) {
			mentioned = append(mentioned, g)
		}
	}
	return mentioned
}

// groupBlock aggregates a group's description, excerpts and samples into
// one labelled block. The header name is kept verbatim so the model can
// mirror it back in per-group answers.
func groupBlock(name string, texts []string) models.ContextPiece {
	return models.ContextPiece{
		Text: "=== GROUP " + name + " ===\n" + strings.Join(texts, "\n\n"),
	}
}

func descriptionLine(g models.Group) string {
	return fmt.Sprintf("Group %s description: %s", g.Name, g.Template)
}

func descriptionPiece(g models.Group) models.ContextPiece {
	return models.ContextPiece{Text: descriptionLine(g)}
}

func joinChunkTexts(chunks []models.ContentChunk, sep string) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, sep)
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

func containsObjectID(ids []primitive.ObjectID, target primitive.ObjectID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func appendDistinct(ids []string, id string) []string {
	if id == "" {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
