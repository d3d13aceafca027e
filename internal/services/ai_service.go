package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"hivox/internal/gemini"
	"hivox/internal/rewards"
)

const noAIResponse = "No response from AI."

// ContentGenerator produces a model reply for a prompt
type ContentGenerator interface {
	Configured() bool
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type AIService struct {
	generator    ContentGenerator
	systemPrompt string
}

// NewAIService builds the assistant prompt around the active reward table
func NewAIService(generator ContentGenerator, table rewards.Table) *AIService {
	return &AIService{
		generator:    generator,
		systemPrompt: buildSystemPrompt(table),
	}
}

// Chat answers a user question about Hivox
func (s *AIService) Chat(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", invalidField("prompt", "No prompt provided.")
	}
	if !s.generator.Configured() {
		return "", &UpstreamError{Service: "gemini", Kind: UpstreamUnavailable, Message: "Error connecting to Gemini API."}
	}

	reply, err := s.generator.GenerateContent(ctx, s.systemPrompt+"\n**User Prompt:** "+prompt+"\n")
	if err != nil {
		kind := UpstreamUnavailable
		var apiErr *gemini.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusTooManyRequests:
				kind = UpstreamRateLimited
			case http.StatusUnauthorized, http.StatusForbidden:
				kind = UpstreamUnauthorized
			}
		}
		return "", &UpstreamError{Service: "gemini", Kind: kind, Message: "Error connecting to Gemini API.", Err: err}
	}

	if strings.TrimSpace(reply) == "" {
		return noAIResponse, nil
	}
	return reply, nil
}

func buildSystemPrompt(table rewards.Table) string {
	percentages := make([]string, 0, len(table.Levels))
	for _, level := range table.Levels {
		percentages = append(percentages, level.Percentage.String()+"%")
	}
	rates := strings.Join(percentages, ", ")

	var b strings.Builder
	b.WriteString("You are an expert AI assistant for the Hivox Airdrop Web3 project.\n\n")
	b.WriteString("**PROJECT OVERVIEW:**\n")
	b.WriteString("Hivox Airdrop is a Web3 token distribution platform with multi-level referrals, ")
	b.WriteString("Sybil resistance through Gitcoin Passport, social task verification on Twitter/X ")
	b.WriteString("and an AI assistant. Token claims are executed by the airdrop smart contract; ")
	b.WriteString("the backend records users, referrals, activities and claim history.\n\n")
	b.WriteString("**KEY FEATURES:**\n")
	fmt.Fprintf(&b, "- %d-Level Referral Rewards: %s of each claim, credited to the referrer, their referrer and so on\n", len(table.Levels), rates)
	b.WriteString("- Referral Link Generation: every wallet gets a unique referral code and link\n")
	b.WriteString("- Gitcoin Passport: human verification through multiple identity providers\n")
	b.WriteString("- Tweet Verification: the campaign tweet is checked through the Twitter API v2\n")
	b.WriteString("- One claim per wallet; every transaction hash is recorded once\n\n")
	b.WriteString("**Instructions for responding:**\n")
	b.WriteString("- Provide **short, concise** answers in **markdown bullet points** (use \"- \" for each point).\n")
	b.WriteString("- Keep responses **professional, clear, and to the point**.\n")
	b.WriteString("- Limit each bullet point to 1-2 sentences.\n")
	b.WriteString("- Answer questions about airdrops, referrals, Web3, DAOs, blockchain, or Hivox features.\n")
	b.WriteString("- If the question is unclear, clarify briefly and provide a relevant response.\n")
	b.WriteString("- If you lack specific details, say so politely and suggest checking official Hivox resources.\n")
	fmt.Fprintf(&b, "- **IMPORTANT:** Always use the correct referral percentages: %s.\n", rates)
	return b.String()
}
