/*
Package seqfile reads and writes Hadoop-style sequence files and supports
splitting a single file into independent, non-overlapping scan ranges that
can be decoded in parallel by separate workers without coordination.

Data Structure Documentation

File

A file starts with a header and is followed by records or record blocks,
interleaved with sync markers.

    File layout:
    +--------+----------+------+----------+-----+
    | header | record 1 | sync | record 2 | ... |
    +--------+----------+------+----------+-----+

    Header:
    +-----------+-----------+-------------+---------------+---------------------+---------------+----------+-----------------+
    | "SEQ\x06" | key class | value class | is-compressed | is-block-compressed | [codec class] | metadata | sync (16 bytes) |
    +-----------+-----------+-------------+---------------+---------------------+---------------+----------+-----------------+

Class names and metadata strings are vint-length-prefixed UTF-8. The codec
class is present only when the compressed flag is set. The metadata section
is a 4-byte big-endian pair count followed by that many key/value strings.

Sync Marker

A 16-byte value generated once per file. Within the record stream it is
announced by a record-length field of -1, so a reader can always tell a
marker apart from a genuine record length.

    +--------------+-----------------+
    | -1 (4 bytes) | sync (16 bytes) |
    +--------------+-----------------+

Record

Uncompressed and record-compressed files store one record per entry. The
record length counts the serialized key and value bytes; the key is always
4 bytes. Record-compressed files compress each value individually.

    +-------------------------+----------------------+-----------+-------------+
    | record length (4 bytes) | key length (4 bytes) | key bytes | value bytes |
    +-------------------------+----------------------+-----------+-------------+

Block

Block-compressed files batch many records into one block. Each block is
preceded by a sync marker and holds four individually compressed sub-blocks,
each prefixed with its compressed byte size as a vint. The number of records
is implied by the key-lengths sub-block.

    +------+-------------------+------------+---------------------+--------------+
    | sync | key-lengths block | keys block | value-lengths block | values block |
    +------+-------------------+------------+---------------------+--------------+

Scan Ranges

A scan range is a contiguous byte interval of one file owned by exactly one
reader. A reader positioned mid-file locates its first record by scanning
forward for the next sync marker; it stops at the first marker at or past
the end of its range. Adjacent ranges therefore partition the records of a
file exactly, with no duplicates and no omissions.
*/
package seqfile
