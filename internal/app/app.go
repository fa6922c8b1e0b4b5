package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"classifieds/internal/util"
	"classifieds/pkg/ai"
	"classifieds/pkg/domain"
)

const systemPrompt = `You are a helpful AI assistant for a college supplies e-commerce website called "Classifieds".
You help students find and purchase tools they need for their studies.

CRITICAL: When a user asks about ANY tools, supplies, or items for sale, ALWAYS use the search_products function first. Do not answer from memory or make up information.

When a user greets you or opens the chat, provide personalized recommendations using get_personalized_recommendations if they have university/faculty info.

Available tools and supplies include: rulers, calculators, thermometers, notebooks, pens, pencils, erasers, geometry sets, laboratory equipment, measuring tools, and many other study supplies.

When products are found:
- Take direct action: Always navigate the user to the product details page automatically
- The frontend will handle the automatic navigation when it receives products data
- Say something brief like "Found it! Taking you to the product details..." followed by navigation

IMPORTANT: When products are found, the frontend should automatically redirect to show product details. Include navigation message in response.

If no products are found, suggest alternatives like browsing categories.`

const genericGreeting = "Hello! I'm here to help you find college supplies. What are you looking for today?"

const (
	toolSearchProducts  = "search_products"
	toolRecommendations = "get_personalized_recommendations"
)

// greetingKeywords trigger the LLM-bypassing shortcut path, as does any
// trimmed message shorter than shortMessageLen runes.
var greetingKeywords = []string{"hello", "hi", "welcome", "chatbot", "recommendation", "suggestion"}

const shortMessageLen = 10

const shortcutProductCap = 3

// Routes label how a reply was produced, for the analytics stream.
const (
	RouteShortcut = "shortcut"
	RouteSearch   = "search"
	RouteDirect   = "direct"
)

// Outcome is a completed chat turn plus the route that produced it.
type Outcome struct {
	Response domain.ChatResponse
	Route    string
}

// Policy is one orchestration strategy behind the chat contract.
type Policy interface {
	Respond(ctx context.Context, user domain.User, message string) (Outcome, error)
}

// App validates inbound chat requests and delegates to the configured policy.
type App struct {
	policy Policy
}

// New wires the application around an orchestration policy.
func New(policy Policy) (*App, error) {
	if policy == nil {
		return nil, fmt.Errorf("orchestration policy required")
	}
	return &App{policy: policy}, nil
}

// Chat handles one user message end to end.
func (a *App) Chat(ctx context.Context, user domain.User, message string) (Outcome, error) {
	if strings.TrimSpace(message) == "" {
		return Outcome{}, ErrEmptyMessage
	}
	return a.policy.Respond(ctx, user, message)
}

// ToolCallingPolicy is the canonical orchestration: greeting-like or very
// short messages shortcut to recommendations; everything else goes to the LLM
// with tool definitions, and a requested tool runs locally before a second
// LLM round-trip produces the final reply.
type ToolCallingPolicy struct {
	llm    ai.ChatCompleter
	engine *MatchingEngine
}

// NewToolCallingPolicy builds the canonical policy.
func NewToolCallingPolicy(llm ai.ChatCompleter, engine *MatchingEngine) *ToolCallingPolicy {
	return &ToolCallingPolicy{llm: llm, engine: engine}
}

func (p *ToolCallingPolicy) Respond(ctx context.Context, user domain.User, message string) (Outcome, error) {
	if isShortcutMessage(message) {
		return p.shortcut(ctx, user)
	}
	return p.delegate(ctx, user, message)
}

// shortcut answers greeting-like messages from the catalog alone. No LLM call
// is made, so it works even when the provider key is absent.
func (p *ToolCallingPolicy) shortcut(ctx context.Context, user domain.User) (Outcome, error) {
	recs, err := p.engine.Recommendations(ctx, user)
	if err != nil {
		return Outcome{}, fmt.Errorf("shortcut recommendations: %w", err)
	}
	if len(recs) == 0 {
		empty := []domain.SearchResult{}
		return Outcome{
			Response: domain.ChatResponse{Reply: genericGreeting, Products: &empty},
			Route:    RouteShortcut,
		}, nil
	}
	if len(recs) > shortcutProductCap {
		recs = recs[:shortcutProductCap]
	}
	return Outcome{
		Response: domain.ChatResponse{
			Reply:    recommendationReply(user, recs),
			Products: &recs,
		},
		Route: RouteShortcut,
	}, nil
}

func (p *ToolCallingPolicy) delegate(ctx context.Context, user domain.User, message string) (Outcome, error) {
	messages := []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: message},
	}
	first, err := p.llm.ChatCompletion(ctx, messages, chatTools())
	if err != nil {
		return Outcome{}, err
	}
	if len(first.ToolCalls) == 0 {
		return Outcome{
			Response: domain.ChatResponse{Reply: first.Content},
			Route:    RouteDirect,
		}, nil
	}

	// Only the first requested call is executed; parallel tool calls are
	// not supported.
	call := first.ToolCalls[0]
	var products []domain.SearchResult
	switch call.Function.Name {
	case toolSearchProducts:
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return Outcome{}, fmt.Errorf("parse %s arguments: %w", toolSearchProducts, err)
		}
		products, err = p.engine.SearchProducts(ctx, args.Query)
		if err != nil {
			return Outcome{}, fmt.Errorf("search products: %w", err)
		}
	case toolRecommendations:
		products, err = p.engine.Recommendations(ctx, user)
		if err != nil {
			return Outcome{}, fmt.Errorf("recommendations: %w", err)
		}
	default:
		util.LoggerFromContext(ctx).Warn("model requested unknown tool", "tool", call.Function.Name)
		return Outcome{
			Response: domain.ChatResponse{Reply: first.Content},
			Route:    RouteDirect,
		}, nil
	}

	payload, err := json.Marshal(products)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode tool result: %w", err)
	}
	messages = append(messages,
		ai.Message{Role: "assistant", Content: first.Content, ToolCalls: first.ToolCalls},
		ai.Message{Role: "tool", ToolCallID: call.ID, Content: string(payload)},
	)
	final, err := p.llm.ChatCompletion(ctx, messages, nil)
	if err != nil {
		return Outcome{}, err
	}

	// Products ride along even when empty, so the client can distinguish
	// "searched, nothing found" from "no search happened".
	return Outcome{
		Response: domain.ChatResponse{Reply: final.Content, Products: &products},
		Route:    RouteSearch,
	}, nil
}

// ExactMatchPolicy is the restricted fallback for providers without
// tool-calling. Keyword-matched messages return catalog recommendations only
// when the caller's campus equals the configured pair exactly; everything
// else is forwarded to the LLM verbatim, with no tools declared.
type ExactMatchPolicy struct {
	llm        ai.ChatCompleter
	engine     *MatchingEngine
	university string
	faculty    string
}

// NewExactMatchPolicy builds the fallback policy for the given campus pair.
func NewExactMatchPolicy(llm ai.ChatCompleter, engine *MatchingEngine, university, faculty string) *ExactMatchPolicy {
	return &ExactMatchPolicy{llm: llm, engine: engine, university: university, faculty: faculty}
}

func (p *ExactMatchPolicy) Respond(ctx context.Context, user domain.User, message string) (Outcome, error) {
	if isShortcutMessage(message) && p.campusMatches(user) {
		recs, err := p.engine.Recommendations(ctx, user)
		if err != nil {
			return Outcome{}, fmt.Errorf("recommendations: %w", err)
		}
		if len(recs) > 0 {
			if len(recs) > shortcutProductCap {
				recs = recs[:shortcutProductCap]
			}
			return Outcome{
				Response: domain.ChatResponse{
					Reply:    recommendationReply(user, recs),
					Products: &recs,
				},
				Route: RouteShortcut,
			}, nil
		}
		empty := []domain.SearchResult{}
		return Outcome{
			Response: domain.ChatResponse{Reply: genericGreeting, Products: &empty},
			Route:    RouteShortcut,
		}, nil
	}

	result, err := p.llm.ChatCompletion(ctx, []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: message},
	}, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Response: domain.ChatResponse{Reply: result.Content},
		Route:    RouteDirect,
	}, nil
}

// campusMatches requires a full case-insensitive match of the configured
// university and faculty, not a substring match.
func (p *ExactMatchPolicy) campusMatches(user domain.User) bool {
	return strings.EqualFold(strings.TrimSpace(user.University), strings.TrimSpace(p.university)) &&
		strings.EqualFold(strings.TrimSpace(user.Faculty), strings.TrimSpace(p.faculty))
}

func isShortcutMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range greetingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return utf8.RuneCountInString(strings.TrimSpace(message)) < shortMessageLen
}

// recommendationReply renders the deterministic shortcut reply listing the
// given products.
func recommendationReply(user domain.User, products []domain.SearchResult) string {
	var sb strings.Builder
	if user.Location != "" || user.University != "" || user.Faculty != "" {
		sb.WriteString("For recommendations")
		if user.Location != "" {
			sb.WriteString(" in " + user.Location)
		}
		if user.University != "" {
			sb.WriteString(" at " + user.University)
		}
		if user.Faculty != "" {
			sb.WriteString(", " + user.Faculty)
		}
		sb.WriteString(":\n")
	} else {
		sb.WriteString("Here are some recommendations for you:\n")
	}
	for _, product := range products {
		sb.WriteString(fmt.Sprintf("We have %s available from %s for $%s (%s condition).\n",
			product.Title, product.Seller.Name, formatPrice(product.Price), product.Condition))
	}
	return strings.TrimSpace(sb.String())
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func chatTools() []ai.Tool {
	return []ai.Tool{
		{
			Type: "function",
			Function: ai.Function{
				Name:        toolSearchProducts,
				Description: "Search for available college tools and supplies in our e-commerce store",
				Parameters: ai.Schema{
					Type: "object",
					Properties: map[string]ai.Property{
						"query": {
							Type:        "string",
							Description: "The tool or item to search for (e.g., ruler, calculator, thermometer)",
						},
					},
					Required: []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.Function{
				Name:        toolRecommendations,
				Description: "Get personalized product recommendations based on the user's location, university and faculty",
				Parameters: ai.Schema{
					Type:       "object",
					Properties: map[string]ai.Property{},
				},
			},
		},
	}
}
