package workflow

import (
	"fmt"
	"strings"

	"github.com/hlabs/openclaw/internal/conversation"
)

// Status messages written to the conversation store as the run progresses.

func handoffMessage(r Route) string {
	if r.Category == CategoryCopy {
		return fmt.Sprintf("**[Category: Copy]**\n\nHanding the task to the %s in **#%s** (search enabled)...",
			r.Executor, r.ExecutorChannel)
	}
	return fmt.Sprintf("**[Category: Engineering]**\n\nHanding the task to the %s in **#%s**...",
		r.Executor, r.ExecutorChannel)
}

func auditRequestMessage(r Route, attempt int) string {
	if attempt == 0 {
		return fmt.Sprintf("Work complete. Requesting review from the %s in **#%s**...", r.Auditor, r.AuditorChannel)
	}
	return fmt.Sprintf("Revised (v%d). Resubmitting to **#%s** for review...", attempt+1, r.AuditorChannel)
}

func rejectionNotice(r Route, attempt, limit int) string {
	return fmt.Sprintf("❌ **Review rejected** (attempt %d/%d)\n\nSending the feedback back to the %s for revision...",
		attempt, limit, r.Executor)
}

func approvalNotice() string {
	return fmt.Sprintf("**✅ Review passed.** Forwarding to **#%s** for packaging.", conversation.FinalOutput)
}

func failedMessage(limit int) string {
	return fmt.Sprintf("❌ **Task failed.**\n\nAfter %d attempts the solution still did not pass review. Manual intervention required.", limit)
}

const deliveringMessage = "Sending the deliverable to the user by private message..."

func deliveryResultMessage(recipient string, ok bool) string {
	if ok {
		return fmt.Sprintf("✅ **Delivered**\n\nThe deliverable was sent to the user by private message (ID: %s).", recipient)
	}
	return fmt.Sprintf("⚠️ **Delivery failed**\n\nCould not send a private message (ID: %s). Make sure the user has started a private chat with the bot.", recipient)
}

// RevisionPrompt builds the executor input after a rejection. It carries
// the full audit and, for routes with search, permits searching again.
func RevisionPrompt(r Route, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONTEXT: Your previous output was rejected by the %s.\n\n", r.Auditor)
	b.WriteString("AUDITOR FEEDBACK:\n")
	b.WriteString(feedback)
	b.WriteString("\n\nTASK:\nRewrite the content/code to address the auditor's feedback.\n")
	b.WriteString("Ensure you fix the specific issues mentioned.\n")
	if r.Search {
		b.WriteString("You may use Google Search again if the feedback points out factual errors or style issues.\n")
	}
	b.WriteString("Return the full corrected version.")
	return b.String()
}
