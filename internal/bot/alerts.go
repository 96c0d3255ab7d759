package bot

import (
	"context"
	"fmt"
	"time"
)

const alertTimeout = 10 * time.Second

// DispatchHealthIssue tells every admin that a component went unhealthy.
func (h *Handler) DispatchHealthIssue(ctx context.Context, source, level, message string) {
	h.alertAdmins(ctx, fmt.Sprintf("⚠️ <b>%s</b> is %s\n<code>%s</code>",
		escape(source), escape(level), escape(truncate(message, 500))))
}

// DispatchHealthRestored tells every admin that a component recovered.
func (h *Handler) DispatchHealthRestored(ctx context.Context, source string) {
	h.alertAdmins(ctx, fmt.Sprintf("✅ <b>%s</b> recovered", escape(source)))
}

func (h *Handler) alertAdmins(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()

	for _, id := range h.cfg.AdminIDs {
		h.reply(ctx, id, text, nil)
	}
}
