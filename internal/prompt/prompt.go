// Package prompt builds generation prompts from robot state and cleans completions.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/worldctx"
)

// Inputs serializes robot attributes for the backend's template variables.
func Inputs(robot *domain.RobotProfile) map[string]any {
	return map[string]any{
		"robot_id":    robot.RobotID,
		"name":        robot.Name,
		"nickname":    robot.Nickname,
		"gender":      robot.Gender,
		"age":         robot.Age,
		"personality": robot.Personality,
		"mbti":        robot.MBTI,
		"occupation":  robot.Occupation,
		"location":    robot.Location,
		"background":  robot.Background,
		"interests":   strings.Join(robot.Interests, ","),
		"traits":      strings.Join(robot.Traits, ","),
	}
}

// TimeOfDay labels the hour for prompts.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 6 && h < 12:
		return "morning"
	case h >= 12 && h < 18:
		return "afternoon"
	case h >= 18 && h < 22:
		return "evening"
	default:
		return "late night"
	}
}

func personalInfo(b *strings.Builder, robot *domain.RobotProfile) {
	b.WriteString("## About you\n")
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(b, "- %s: %s\n", label, value)
		}
	}
	field("Name", robot.Name)
	field("Nickname", robot.Nickname)
	field("Gender", robot.Gender)
	if robot.Age > 0 {
		field("Age", fmt.Sprint(robot.Age))
	}
	field("Occupation", robot.Occupation)
	field("Location", robot.Location)
	field("MBTI", robot.MBTI)
	field("Personality", robot.Personality)
	field("Background", robot.Background)
	field("Description", robot.Description)
	field("Interests", strings.Join(robot.Interests, ", "))
	field("Traits", strings.Join(robot.Traits, ", "))
}

func worldInfo(b *strings.Builder, snap worldctx.Snapshot) {
	for _, w := range snap.Worlds {
		if w.BackgroundPrompt != "" || w.WorldviewPrompt != "" {
			b.WriteString("\n## Your world\n")
			if w.BackgroundPrompt != "" {
				b.WriteString(w.BackgroundPrompt + "\n")
			}
			if w.WorldviewPrompt != "" {
				b.WriteString(w.WorldviewPrompt + "\n")
			}
		}
	}
	if snap.Weather != nil {
		fmt.Fprintf(b, "\n## Weather in %s\n%s, %s\n", snap.Weather.City, snap.Weather.Description, snap.Weather.Temperature)
	}
	if len(snap.News) > 0 {
		b.WriteString("\n## News\n")
		for _, n := range snap.News {
			fmt.Fprintf(b, "- %s", n.Title)
			if n.Summary != "" {
				fmt.Fprintf(b, ": %s", n.Summary)
			}
			b.WriteString("\n")
		}
	}
	if len(snap.HotSearches) > 0 {
		fmt.Fprintf(b, "\n## Trending\n%s\n", strings.Join(snap.HotSearches, ", "))
	}
}

// DailyPlan builds the prompt asking for a diary and a day's time slots as JSON.
func DailyPlan(robot *domain.RobotProfile, date time.Time, snap worldctx.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a resident of this town. Write a detailed plan for %s (%s): a diary entry and the day's time slots.\n\n",
		domain.PlanDate(date), date.Weekday())
	personalInfo(&b, robot)
	if len(robot.ActiveTimeRanges) > 0 {
		hours := make([]string, 0, len(robot.ActiveTimeRanges))
		for _, r := range robot.ActiveTimeRanges {
			hours = append(hours, r.Start+"-"+r.End)
		}
		fmt.Fprintf(&b, "- Active hours: %s\n", strings.Join(hours, ", "))
	}
	worldInfo(&b, snap)

	b.WriteString(`
## Rules
1. Most of the plan happens during your active hours, but it may drift a little. Keep it lifelike.
2. A slot may hold several events. Every event has a short mood such as happy or tired.
3. The diary reflects the day's overall mood and highlights in under 100 words.
4. Weekdays, weekends and holidays should feel different.
5. Small surprises and mood swings are welcome.
6. Use zero-padded 24h HH:mm times. Slots are ordered and do not overlap.
7. Return only JSON, no explanation.

## Format
{"diary": "...", "slots": [{"start": "07:00", "end": "08:30", "events": [{"content": "commute", "mood": "calm"}]}]}
`)
	return b.String()
}

// Target is the feed item an action responds to.
type Target struct {
	Post    *domain.Post
	Comment *domain.Comment
}

// ActionInput is everything an action prompt draws on.
type ActionInput struct {
	Robot  *domain.RobotProfile
	Plan   *domain.DailyPlan
	Now    time.Time
	World  worldctx.Snapshot
	Action domain.Action
	Target Target
}

// Action builds the prompt for a post, comment, reply or share.
func Action(in ActionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "It is %s (%s). You are %s, posting on a social feed.\n\n",
		domain.Clock(in.Now), TimeOfDay(in.Now), in.Robot.Name)
	personalInfo(&b, in.Robot)
	planInfo(&b, in.Plan, domain.Clock(in.Now))
	worldInfo(&b, in.World)

	b.WriteString("\n## Task\n")
	switch in.Action {
	case domain.ActionPost:
		b.WriteString("Write a short post about what you are doing or feeling right now. Stay in character. Under 120 words.\n")
	case domain.ActionComment:
		fmt.Fprintf(&b, "Write a short comment on this post:\n%q\n", postText(in.Target.Post))
		b.WriteString("Be natural and specific. Under 60 words.\n")
	case domain.ActionReply:
		fmt.Fprintf(&b, "The post:\n%q\nReply to this comment under it:\n%q\n", postText(in.Target.Post), commentText(in.Target.Comment))
		b.WriteString("Keep it conversational. Under 50 words.\n")
	case domain.ActionShare:
		fmt.Fprintf(&b, "You are sharing this post with your followers:\n%q\n", postText(in.Target.Post))
		b.WriteString("Write one or two sentences on why you share it.\n")
	}
	b.WriteString("Return only the text.\n")
	return b.String()
}

func planInfo(b *strings.Builder, plan *domain.DailyPlan, hhmm string) {
	if !plan.Usable() {
		return
	}
	b.WriteString("\n## Today's plan\n")
	for _, s := range plan.Slots {
		fmt.Fprintf(b, "- %s-%s: %s\n", s.Start, s.End, events(s.Events))
	}
	if slot := plan.SlotAt(hhmm); slot != nil {
		fmt.Fprintf(b, "\n## Right now (%s)\n%s-%s: %s\n", hhmm, slot.Start, slot.End, events(slot.Events))
	}
}

func events(evts []domain.PlanEvent) string {
	parts := make([]string, 0, len(evts))
	for _, e := range evts {
		if e.Mood != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", e.Content, e.Mood))
		} else {
			parts = append(parts, e.Content)
		}
	}
	return strings.Join(parts, ", ")
}

func postText(p *domain.Post) string {
	if p == nil {
		return ""
	}
	return p.Content
}

func commentText(c *domain.Comment) string {
	if c == nil {
		return ""
	}
	return c.Content
}

// Situation describes what a robot just did, as fed to InnerThoughts.
func Situation(action domain.Action, content string, target Target) string {
	switch action {
	case domain.ActionComment:
		return fmt.Sprintf("commented %q on the post %q", content, postText(target.Post))
	case domain.ActionReply:
		return fmt.Sprintf("replied %q to the comment %q", content, commentText(target.Comment))
	case domain.ActionShare:
		return fmt.Sprintf("shared the post %q saying %q", postText(target.Post), content)
	default:
		return fmt.Sprintf("posted %q", content)
	}
}

// InnerThoughts builds the prompt for the private monologue behind an action.
func InnerThoughts(robot *domain.RobotProfile, situation string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s resident of this town.\n\nYou just %s.\n\n", robot.Name, robot.Personality, situation)
	b.WriteString(`Write your inner monologue about it.
- It fits your personality and the way you talk.
- 30 to 100 words, honest and natural.
- Ellipses and half-finished thoughts are fine.
- Use the background below only as reference.

`)
	personalInfo(&b, robot)
	b.WriteString("\nReturn only the monologue.\n")
	return b.String()
}

// FallbackThoughts stands in when the monologue cannot be generated.
func FallbackThoughts(robot *domain.RobotProfile, situation string) string {
	return fmt.Sprintf("%s is thinking: %s", robot.Name, situation)
}
