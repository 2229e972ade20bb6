package email

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexus_server/core/domain"
	"nexus_server/core/port/in"
)

const (
	historicFetchLimit = 500
	historicTopSenders = 30
	historicSampleSize = 3
	topKeywordCount    = 5
	minKeywordLen      = 4
)

// AnalyzeHistory runs the one-shot mailbox pass: per-sender statistics
// over the recent history plus one short LLM summary per top sender.
// Repeat invocations for the same account are no-ops.
func (s *Service) AnalyzeHistory(ctx context.Context, userID uuid.UUID, req *in.SyncEmailsRequest) (*in.HistoricResult, error) {
	creds, err := s.resolveCredentials(req)
	if err != nil {
		return nil, err
	}
	account, err := s.ensureAccount(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	done, err := s.repo.HistoricPassDone(ctx, userID, account.ID)
	if err != nil {
		return nil, err
	}
	if done {
		return &in.HistoricResult{AlreadyDone: true}, nil
	}

	emails, err := s.provider.FetchRecent(ctx, creds, historicFetchLimit)
	if err != nil {
		return nil, err
	}

	groups := groupBySender(emails)
	top := topSenders(groups, historicTopSenders)

	result := &in.HistoricResult{TotalEmails: len(emails)}
	for _, sender := range top {
		profile := buildSenderProfile(userID, account.ID, sender, groups[sender])

		if err := s.pace(ctx); err != nil {
			return nil, err
		}
		result.LLMCalls++
		tone, topic, importance, err := s.llm.SummarizeSender(ctx, sender, sampleBodies(groups[sender], historicSampleSize))
		if err != nil {
			s.log.WithError(err).WithField("sender", sender).Warn("sender summary skipped, stats-only profile kept")
		} else {
			profile.HabitualTone = tone
			profile.PrimaryTopic = topic
			profile.ImportanceLevel = importance
		}

		if err := s.repo.UpsertSenderProfile(ctx, profile); err != nil {
			s.log.WithError(err).WithField("sender", sender).Warn("sender profile not stored")
			continue
		}
		result.SendersProfiled++
	}

	if err := s.repo.MarkHistoricPassDone(ctx, userID, account.ID); err != nil {
		s.log.WithError(err).Warn("historic completion marker not stored")
	}

	if result.TotalEmails > 0 {
		result.SavingsPct = 1 - float64(result.LLMCalls)/float64(result.TotalEmails)
	}
	return result, nil
}

func groupBySender(emails []*domain.IncomingEmail) map[string][]*domain.IncomingEmail {
	groups := make(map[string][]*domain.IncomingEmail)
	for _, e := range emails {
		sender := strings.ToLower(strings.TrimSpace(e.Sender))
		if sender == "" {
			continue
		}
		groups[sender] = append(groups[sender], e)
	}
	return groups
}

// topSenders orders senders by message count descending, address
// ascending as tiebreak, and keeps the first limit.
func topSenders(groups map[string][]*domain.IncomingEmail, limit int) []string {
	senders := make([]string, 0, len(groups))
	for sender := range groups {
		senders = append(senders, sender)
	}
	sort.Slice(senders, func(i, j int) bool {
		if len(groups[senders[i]]) != len(groups[senders[j]]) {
			return len(groups[senders[i]]) > len(groups[senders[j]])
		}
		return senders[i] < senders[j]
	})
	if len(senders) > limit {
		senders = senders[:limit]
	}
	return senders
}

// buildSenderProfile computes the deterministic half of the profile.
func buildSenderProfile(userID uuid.UUID, accountID int64, sender string, emails []*domain.IncomingEmail) *domain.SenderProfile {
	profile := &domain.SenderProfile{
		UserID:         userID,
		EmailAccountID: accountID,
		Sender:         sender,
		TotalEmails:    len(emails),
	}
	if len(emails) == 0 {
		return profile
	}

	first, last := emails[0].Date, emails[0].Date
	hourCounts := make(map[int]int)
	totalLen := 0
	for _, e := range emails {
		if e.Date.Before(first) {
			first = e.Date
		}
		if e.Date.After(last) {
			last = e.Date
		}
		hourCounts[e.Date.Hour()]++
		totalLen += len(e.Body)
	}

	profile.FirstContact = first
	profile.LastContact = last
	if span := last.Sub(first); span > 0 && len(emails) > 1 {
		profile.FrequencyDays = span.Hours() / 24 / float64(len(emails)-1)
	}
	profile.TypicalHour = modeHour(hourCounts)
	profile.AvgLength = totalLen / len(emails)
	profile.TopKeywords = topKeywords(emails, topKeywordCount)
	profile.UpdatedAt = time.Now()
	return profile
}

func modeHour(counts map[int]int) int {
	best, bestCount := 0, -1
	for hour := 0; hour < 24; hour++ {
		if counts[hour] > bestCount {
			best, bestCount = hour, counts[hour]
		}
	}
	return best
}

// topKeywords tokenises subjects and bodies on non-letters and counts
// words of at least minKeywordLen runes.
func topKeywords(emails []*domain.IncomingEmail, limit int) []string {
	counts := make(map[string]int)
	for _, e := range emails {
		for _, word := range tokenize(e.Subject + " " + e.Body) {
			counts[word]++
		}
	}

	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isLetter(r)
	})
	var words []string
	for _, f := range fields {
		if len([]rune(f)) >= minKeywordLen {
			words = append(words, f)
		}
	}
	return words
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		r == 'á' || r == 'é' || r == 'í' || r == 'ó' || r == 'ú' || r == 'ñ' || r == 'ü'
}

func sampleBodies(emails []*domain.IncomingEmail, n int) []string {
	samples := make([]string, 0, n)
	for _, e := range emails {
		if len(samples) == n {
			break
		}
		body := e.Body
		if len(body) > 400 {
			body = body[:400]
		}
		samples = append(samples, e.Subject+"\n"+body)
	}
	return samples
}
