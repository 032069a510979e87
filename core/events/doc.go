// Package events defines the typed turn lifecycle event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - turn.*
//   - conversation.*
//   - avatar.*
//
// turn events
//
//   - TurnStarted (turn.started): capture began for a new turn.
//   - TurnThinking (turn.thinking): capture ended, the pipeline is working;
//     consumed by the avatar "thinking" animation.
//   - TurnCompleted (turn.completed): synthesis playback started, the turn is
//     done and its latency record is final.
//   - TurnPreempted (turn.preempted): a newer turn displaced this one; never
//     user-visible.
//   - TurnFailed (turn.failed): a stage timed out or errored; the single
//     funnel consumed by the failure notifier.
//
// conversation events
//
//   - UserMessageSent (conversation.user_message_sent): the transcribed user
//     message was appended to history, carries the turn start timestamp.
//   - AIResponseReceived (conversation.ai_response_received): a parsed
//     assistant reply was appended to history.
//
// avatar events
//
//   - AvatarStartSpeak (avatar.start_speak): synthesized playback started,
//     carries the clip duration for the pointing/animation collaborator.
package events
