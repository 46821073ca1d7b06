package shell

// ZshPlugin is the zsh plugin source. A preexec hook appends every command
// with an epoch timestamp to the oprec command log while a recording is
// active.
const ZshPlugin = `# oprec shell plugin, generated by "oprec setup", do not edit
# Source this file from your ~/.zshrc:
#   source ~/.config/oprec/oprec.plugin.zsh

_oprec_data_dir="${XDG_DATA_HOME:-$HOME/.local/share}/oprec"

_oprec_preexec() {
  [[ -f "$_oprec_data_dir/session.json" ]] || return
  local cmd="$1"
  # oprec's own invocations are recorded by oprec itself.
  [[ "$cmd" =~ ^[[:space:]]*(.*\/)?oprec([[:space:]]|$) ]] && return
  printf '%s\t%s\n' "$(date +%s)" "${cmd//$'\n'/ }" >> "$_oprec_data_dir/commands.log"
}

autoload -Uz add-zsh-hook
add-zsh-hook preexec _oprec_preexec
`
